package inter

// ProducerKey binds a producer account to its block signing key.
type ProducerKey struct {
	ProducerName    Name
	BlockSigningKey PubKey
}

// ProducerSchedule is a round-robin schedule of block producers. The
// version bumps monotonically whenever the producer set changes; a new
// schedule may only be installed at a round boundary.
type ProducerSchedule struct {
	Version   uint32
	Producers []ProducerKey
}

// Equal reports whether two schedules have the same version and producers.
func (s *ProducerSchedule) Equal(other *ProducerSchedule) bool {
	if s.Version != other.Version || len(s.Producers) != len(other.Producers) {
		return false
	}
	for i := range s.Producers {
		if s.Producers[i] != other.Producers[i] {
			return false
		}
	}
	return true
}

// EqualProducers reports whether two schedules name the same producers with
// the same keys, ignoring the version.
func (s *ProducerSchedule) EqualProducers(other *ProducerSchedule) bool {
	if len(s.Producers) != len(other.Producers) {
		return false
	}
	for i := range s.Producers {
		if s.Producers[i] != other.Producers[i] {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of the schedule.
func (s ProducerSchedule) Copy() ProducerSchedule {
	cp := s
	cp.Producers = make([]ProducerKey, len(s.Producers))
	copy(cp.Producers, s.Producers)
	return cp
}
