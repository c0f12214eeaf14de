package inter

import (
	"github.com/rony4d/go-dawn-chain/utils/cser"
)

// Canonical compact encoding of transactions. This is the wire form whose
// size feeds bandwidth accounting, so it must be deterministic and minimal.

const (
	maxNameLen    = 64
	maxPayloadLen = cser.MaxAlloc
	maxScopes     = 1024
	maxActions    = 4096
	maxSignatures = 64
)

func marshalNames(w *cser.Writer, names []Name) {
	w.U56(uint64(len(names)))
	for _, n := range names {
		w.String(string(n))
	}
}

func unmarshalNames(r *cser.Reader) []Name {
	size := r.U56()
	if size > maxScopes {
		panic(cser.ErrTooLargeAlloc)
	}
	names := make([]Name, size)
	for i := range names {
		names[i] = Name(r.String(maxNameLen))
	}
	return names
}

// MarshalCSER serializes the unsigned body.
func (t *Transaction) MarshalCSER(w *cser.Writer) error {
	w.U16(t.RefBlockNum)
	w.U32(t.RefBlockPrefix)
	w.U64(uint64(t.Expiration))
	marshalNames(w, t.ReadScope)
	marshalNames(w, t.WriteScope)
	w.U56(uint64(len(t.Actions)))
	for _, act := range t.Actions {
		w.String(string(act.Scope))
		w.String(string(act.Name))
		w.U56(uint64(len(act.Authorization)))
		for _, auth := range act.Authorization {
			w.String(string(auth.Actor))
			w.String(string(auth.Permission))
		}
		w.SliceBytes(act.Payload)
	}
	return nil
}

// UnmarshalCSER deserializes the unsigned body.
func (t *Transaction) UnmarshalCSER(r *cser.Reader) error {
	t.RefBlockNum = r.U16()
	t.RefBlockPrefix = r.U32()
	t.Expiration = Timestamp(r.U64())
	t.ReadScope = unmarshalNames(r)
	t.WriteScope = unmarshalNames(r)
	size := r.U56()
	if size > maxActions {
		return cser.ErrTooLargeAlloc
	}
	t.Actions = make([]Action, size)
	for i := range t.Actions {
		act := &t.Actions[i]
		act.Scope = Name(r.String(maxNameLen))
		act.Name = ActionName(r.String(maxNameLen))
		authSize := r.U56()
		if authSize > maxScopes {
			return cser.ErrTooLargeAlloc
		}
		act.Authorization = make([]PermissionLevel, authSize)
		for j := range act.Authorization {
			act.Authorization[j].Actor = Name(r.String(maxNameLen))
			act.Authorization[j].Permission = PermissionName(r.String(maxNameLen))
		}
		act.Payload = r.SliceBytes(maxPayloadLen)
	}
	return nil
}

// MarshalBinary encodes the signed transaction into its canonical compact
// form.
func (t *SignedTransaction) MarshalBinary() ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		if err := t.Transaction.MarshalCSER(w); err != nil {
			return err
		}
		w.U56(uint64(len(t.Signatures)))
		for _, sig := range t.Signatures {
			w.SliceBytes(sig)
		}
		return nil
	})
}

// UnmarshalBinary decodes the canonical compact form.
func (t *SignedTransaction) UnmarshalBinary(raw []byte) error {
	return cser.UnmarshalBinaryAdapter(raw, func(r *cser.Reader) error {
		if err := t.Transaction.UnmarshalCSER(r); err != nil {
			return err
		}
		size := r.U56()
		if size > maxSignatures {
			return cser.ErrTooLargeAlloc
		}
		t.Signatures = make([][]byte, size)
		for i := range t.Signatures {
			t.Signatures[i] = r.SliceBytes(1024)
		}
		return nil
	})
}

// PackedSize returns the canonical encoded size of the transaction. Every
// authorizing account is billed this many bytes (plus a fixed overhead) of
// bandwidth when the transaction applies.
func (t *SignedTransaction) PackedSize() uint64 {
	raw, err := t.MarshalBinary()
	if err != nil {
		panic("can't encode: " + err.Error())
	}
	return uint64(len(raw))
}
