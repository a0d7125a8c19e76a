package bdgr

import (
	"context"

	"github.com/dgraph-io/badger"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/store"
)

type sessionStore struct {
	run   runner
	clock store.Clock
}

func (s *sessionStore) Get(ctx context.Context, id string) (*model.SessionDescriptor, error) {
	if id == "" {
		return nil, store.IDIsRequired
	}
	var session model.SessionDescriptor
	err := s.run.View(func(txn *badger.Txn) error {
		return getRecord(txn, pfxSession+id, &session, store.SessionNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *sessionStore) Create(ctx context.Context, session *model.SessionDescriptor) error {
	if session.ID == "" {
		return store.IDIsRequired
	}
	return s.run.Update(func(txn *badger.Txn) error {
		if session.CreatedAt.IsZero() {
			session.CreatedAt = s.clock().UTC()
		}
		return putRecord(txn, pfxSession+session.ID, session)
	})
}

func (s *sessionStore) Update(ctx context.Context, session *model.SessionDescriptor) error {
	if session.ID == "" {
		return store.IDIsRequired
	}
	return s.run.Update(func(txn *badger.Txn) error {
		has, err := hasKey(txn, pfxSession+session.ID)
		if err != nil {
			return err
		}
		if !has {
			return store.SessionNotFound
		}
		return putRecord(txn, pfxSession+session.ID, session)
	})
}

// UpdateStatus transitions a session if and only if its current status
// matches the expected one, so concurrent requests against the same
// session cannot both advance it.
func (s *sessionStore) UpdateStatus(ctx context.Context, id string, from, to model.SessionStatus, mutate func(*model.SessionDescriptor)) error {
	if id == "" {
		return store.IDIsRequired
	}
	return s.run.Update(func(txn *badger.Txn) error {
		var session model.SessionDescriptor
		if err := getRecord(txn, pfxSession+id, &session, store.SessionNotFound); err != nil {
			return err
		}
		if session.Status != from {
			return store.StatusConflict
		}
		session.Status = to
		if mutate != nil {
			mutate(&session)
		}
		return putRecord(txn, pfxSession+id, &session)
	})
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return store.IDIsRequired
	}
	return s.run.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(pfxSession + id))
	})
}

func (s *sessionStore) List(ctx context.Context) ([]model.SessionDescriptor, error) {
	var sessions []model.SessionDescriptor
	err := s.run.View(func(txn *badger.Txn) error {
		return forEachValue(txn, pfxSession, func(val []byte) error {
			var session model.SessionDescriptor
			if e := jsoniter.Unmarshal(val, &session); e != nil {
				return e
			}
			sessions = append(sessions, session)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
