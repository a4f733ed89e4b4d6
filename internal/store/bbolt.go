package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/evocrew/evocrew/internal/domain"
)

var buckets = []string{
	"agents", "crews", "workflows", "instructions", "evolution_events",
	"audit", "api_keys",
}

// BoltStore is the reference Store implementation: a single bbolt database
// file under the data root, one bucket per entity kind, JSON-encoded
// values. bbolt's single-writer transactions give us the atomic
// per-entity writes and the cross-entity transaction primitive spec §4.1
// requires for free.
type BoltStore struct {
	db *bbolt.DB

	mu       sync.Mutex
	watchers map[domain.CrewID]chan struct{}

	auditSeq uint64
}

// Open opens (creating if absent) a bbolt database at path and ensures all
// entity buckets exist.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, watchers: make(map[domain.CrewID]chan struct{})}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func put(tx *bbolt.Tx, bucket, key string, v any) error {
	b := tx.Bucket([]byte(bucket))
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", bucket, key, err)
	}
	return b.Put([]byte(key), data)
}

func get(tx *bbolt.Tx, bucket, key string, v any) error {
	b := tx.Bucket([]byte(bucket))
	data := b.Get([]byte(key))
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// --- Agents ---

func (s *BoltStore) PutAgent(_ context.Context, a *domain.Agent) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, "agents", string(a.ID), a)
	})
}

func (s *BoltStore) GetAgent(_ context.Context, id domain.AgentID) (*domain.Agent, error) {
	var a domain.Agent
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx, "agents", string(id), &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *BoltStore) ListAgents(_ context.Context) ([]*domain.Agent, error) {
	var out []*domain.Agent
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte("agents")).ForEach(func(_, v []byte) error {
			var a domain.Agent
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, &a)
			return nil
		})
	})
	return out, err
}

// --- Crews ---

func (s *BoltStore) PutCrew(_ context.Context, c *domain.Crew) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, "crews", string(c.ID), c)
	})
}

func (s *BoltStore) GetCrew(_ context.Context, id domain.CrewID) (*domain.Crew, error) {
	var c domain.Crew
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx, "crews", string(id), &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) ListCrews(_ context.Context) ([]*domain.Crew, error) {
	var out []*domain.Crew
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte("crews")).ForEach(func(_, v []byte) error {
			var c domain.Crew
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, &c)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteCrew(_ context.Context, id domain.CrewID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte("crews")).Delete([]byte(id))
	})
}

// --- Evolution events ---

func (s *BoltStore) AppendEvolutionEvent(_ context.Context, e *domain.EvolutionEvent) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, "evolution_events", e.ID, e)
	})
}

func (s *BoltStore) ListEvolutionEvents(_ context.Context, agentID domain.AgentID, since time.Time) ([]*domain.EvolutionEvent, error) {
	var out []*domain.EvolutionEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte("evolution_events")).ForEach(func(_, v []byte) error {
			var e domain.EvolutionEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.AgentID == agentID && e.CreatedAt.After(since) {
				out = append(out, &e)
			}
			return nil
		})
	})
	return out, err
}

// --- Workflows ---

func (s *BoltStore) PutWorkflow(_ context.Context, w *domain.Workflow) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, "workflows", string(w.ID), w)
	})
}

func (s *BoltStore) GetWorkflow(_ context.Context, id domain.WorkflowID) (*domain.Workflow, error) {
	var w domain.Workflow
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx, "workflows", string(id), &w)
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *BoltStore) ListActiveWorkflows(_ context.Context) ([]*domain.Workflow, error) {
	var out []*domain.Workflow
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte("workflows")).ForEach(func(_, v []byte) error {
			var w domain.Workflow
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			if w.State.IsNonTerminal() {
				out = append(out, &w)
			}
			return nil
		})
	})
	return out, err
}

// --- Instructions ---

func (s *BoltStore) EnqueueInstruction(_ context.Context, i *domain.Instruction) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, "instructions", string(i.ID), i)
	})
	if err != nil {
		return err
	}
	s.notify(i.CrewID)
	return nil
}

func (s *BoltStore) UpdateInstructionStatus(_ context.Context, id domain.InstructionID, status domain.InstructionStatus, processErr string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		var i domain.Instruction
		if err := get(tx, "instructions", string(id), &i); err != nil {
			return err
		}
		i.Status = status
		i.Error = processErr
		now := time.Now()
		i.ProcessedAt = &now
		return put(tx, "instructions", string(id), &i)
	})
}

func (s *BoltStore) GetInstruction(_ context.Context, id domain.InstructionID) (*domain.Instruction, error) {
	var i domain.Instruction
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx, "instructions", string(id), &i)
	})
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *BoltStore) ListInstructions(_ context.Context, crewID domain.CrewID, status domain.InstructionStatus) ([]*domain.Instruction, error) {
	var out []*domain.Instruction
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte("instructions")).ForEach(func(_, v []byte) error {
			var i domain.Instruction
			if err := json.Unmarshal(v, &i); err != nil {
				return err
			}
			if i.CrewID != crewID {
				return nil
			}
			if status != "" && i.Status != status {
				return nil
			}
			out = append(out, &i)
			return nil
		})
	})
	return out, err
}

// --- Audit ---

func (s *BoltStore) AppendAudit(_ context.Context, r *domain.AuditRecord) error {
	s.mu.Lock()
	s.auditSeq++
	key := fmt.Sprintf("%020d", s.auditSeq)
	s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, "audit", key, r)
	})
}

// --- Api keys ---

func (s *BoltStore) GetApiKeyByHash(_ context.Context, hash [32]byte) (*domain.ApiKey, error) {
	var out *domain.ApiKey
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte("api_keys")).ForEach(func(_, v []byte) error {
			var k domain.ApiKey
			if err := json.Unmarshal(v, &k); err != nil {
				return err
			}
			if k.Hash == hash {
				kk := k
				out = &kk
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *BoltStore) PutApiKey(_ context.Context, k *domain.ApiKey) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, "api_keys", string(k.ID), k)
	})
}

func (s *BoltStore) ListApiKeys(_ context.Context) ([]*domain.ApiKey, error) {
	var out []*domain.ApiKey
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte("api_keys")).ForEach(func(_, v []byte) error {
			var k domain.ApiKey
			if err := json.Unmarshal(v, &k); err != nil {
				return err
			}
			out = append(out, &k)
			return nil
		})
	})
	return out, err
}

// --- Evolution transaction ---

func (s *BoltStore) EvolveAgent(_ context.Context, a *domain.Agent, e *domain.EvolutionEvent) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		var current domain.Agent
		if err := get(tx, "agents", string(a.ID), &current); err != nil {
			return fmt.Errorf("load agent for evolution: %w", err)
		}
		stale := len(current.Personality) != len(e.PreviousTraits)
		for k, v := range current.Personality {
			if pv, ok := e.PreviousTraits[k]; !ok || pv != v {
				stale = true
			}
		}
		if stale {
			return fmt.Errorf("evolve agent %s: previous traits do not match stored personality", a.ID)
		}
		if err := put(tx, "agents", string(a.ID), a); err != nil {
			return err
		}
		return put(tx, "evolution_events", e.ID, e)
	})
}

// --- Watch ---

func (s *BoltStore) Watch(crewID domain.CrewID) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.watchers[crewID]
	if !ok {
		ch = make(chan struct{})
		s.watchers[crewID] = ch
	}
	return ch
}

// notify closes and replaces the watch channel for crewID so any goroutine
// blocked on the previous channel wakes exactly once.
func (s *BoltStore) notify(crewID domain.CrewID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.watchers[crewID]; ok {
		close(ch)
	}
	s.watchers[crewID] = make(chan struct{})
}
