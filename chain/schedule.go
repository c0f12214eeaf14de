package chain

import (
	"github.com/rony4d/go-dawn-chain/inter"
)

// Schedule engine: slot arithmetic and the producer round discipline.
// Slots form a fixed grid anchored at genesis; slot 1 is genesis time plus
// one block interval. Producers take turns in bursts of
// ProducerRepetitions consecutive slots.

// getSlotTime returns the absolute time of the relative slot (0 means "no
// slot" and maps to the zero time).
func (c *Controller) getSlotTime(slot uint32) inter.Timestamp {
	if slot == 0 {
		return 0
	}
	interval := c.rules.Blocks.Interval
	aslot := c.db.FindDynamicGlobalProperties().CurrentAbsoluteSlot
	return c.genesis.Timestamp + inter.Timestamp(aslot+uint64(slot))*interval
}

// getSlotAtTime converts an absolute time to a slot relative to the head;
// 0 if the time precedes the first open slot.
func (c *Controller) getSlotAtTime(when inter.Timestamp) uint32 {
	firstSlotTime := c.getSlotTime(1)
	if when < firstSlotTime {
		return 0
	}
	interval := c.rules.Blocks.Interval
	aslot := c.db.FindDynamicGlobalProperties().CurrentAbsoluteSlot
	return uint32(uint64((when-c.genesis.Timestamp)/interval) - aslot)
}

// getScheduledProducer returns the producer scheduled for the given
// relative slot under the active schedule.
func (c *Controller) getScheduledProducer(slot uint32) inter.Name {
	dgp := c.db.FindDynamicGlobalProperties()
	gpo := c.db.FindGlobalProperties()
	aslot := dgp.CurrentAbsoluteSlot + uint64(slot)

	producers := gpo.ActiveProducers.Producers
	reps := uint64(c.rules.Blocks.ProducerRepetitions)
	round := uint64(len(producers)) * reps
	index := (aslot % round) / reps
	return producers[index].ProducerName
}

// GetSlotTime is the read-locked form of the slot to time mapping.
func (c *Controller) GetSlotTime(slot uint32) (t inter.Timestamp) {
	_ = c.db.WithReadLock(func() error {
		t = c.getSlotTime(slot)
		return nil
	})
	return
}

// GetSlotAtTime is the read-locked form of the time to slot mapping.
func (c *Controller) GetSlotAtTime(when inter.Timestamp) (slot uint32) {
	_ = c.db.WithReadLock(func() error {
		slot = c.getSlotAtTime(when)
		return nil
	})
	return
}

// GetScheduledProducer is the read-locked form of the slot to producer
// mapping.
func (c *Controller) GetScheduledProducer(slot uint32) (producer inter.Name) {
	_ = c.db.WithReadLock(func() error {
		producer = c.getScheduledProducer(slot)
		return nil
	})
	return
}

// blocksPerRound returns the current round length in slots.
func (c *Controller) blocksPerRound() uint32 {
	gpo := c.db.FindGlobalProperties()
	return c.rules.BlocksPerRound(len(gpo.ActiveProducers.Producers))
}

// isStartOfRound reports whether blockNum sits on a round boundary; only
// there may the producer schedule change.
func (c *Controller) isStartOfRound(blockNum uint32) bool {
	return blockNum%c.blocksPerRound() == 0
}

// calculateProducerSchedule elects the top producers by vote, excluding
// any producer without a signing key. The previous version is preserved if
// the set is unchanged, otherwise the version bumps.
func (c *Controller) calculateProducerSchedule() inter.ProducerSchedule {
	var schedule inter.ProducerSchedule
	max := int(c.rules.Blocks.MaxProducers)
	for _, vote := range c.db.ProducersByVote() {
		if len(schedule.Producers) >= max {
			break
		}
		producer := c.db.FindProducer(vote.OwnerName)
		if producer == nil || producer.SigningKey.Empty() {
			continue
		}
		schedule.Producers = append(schedule.Producers, inter.ProducerKey{
			ProducerName:    producer.Owner,
			BlockSigningKey: producer.SigningKey,
		})
	}

	head := c.headProducerSchedule()
	schedule.Version = head.Version
	if !schedule.EqualProducers(head) {
		schedule.Version++
	}
	return schedule
}

// headProducerSchedule returns the most recent schedule: the newest
// pending one if any, else the active one.
func (c *Controller) headProducerSchedule() *inter.ProducerSchedule {
	gpo := c.db.FindGlobalProperties()
	if n := len(gpo.PendingActiveProducers); n > 0 {
		return &gpo.PendingActiveProducers[n-1].Schedule
	}
	return &gpo.ActiveProducers
}
