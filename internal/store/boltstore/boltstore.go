// Package boltstore implements store.Store on a single bbolt file.
//
// Documents are BSON-encoded and keyed by their 12-byte ObjectID, so a forward
// cursor walks them in insertion order. Unique user fields are kept in index
// buckets that are written in the same transaction as the document.
package boltstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
	"github.com/DanielBronsky/cnpf-feeder/internal/store"
)

var (
	bucketUsers            = []byte("users")
	bucketUsersByEmail     = []byte("users_email")
	bucketUsersByUsername  = []byte("users_username")
	bucketReports          = []byte("reports")
	bucketCompetitions     = []byte("competitions")
	bucketRegistrations    = []byte("registrations")
	bucketRegistrationKeys = []byte("registrations_user")
)

var allBuckets = [][]byte{
	bucketUsers, bucketUsersByEmail, bucketUsersByUsername,
	bucketReports, bucketCompetitions, bucketRegistrations, bucketRegistrationKeys,
}

type Store struct {
	db *bbolt.DB
}

var _ store.Store = (*Store)(nil)

// Open creates or opens the database file at path and ensures all buckets exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error { return nil })
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// ---------- helpers ----------

func put(b *bbolt.Bucket, id primitive.ObjectID, doc any) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return b.Put(id[:], data)
}

func get(b *bbolt.Bucket, id primitive.ObjectID, out any) error {
	data := b.Get(id[:])
	if data == nil {
		return store.ErrNotFound
	}
	return bson.Unmarshal(data, out)
}

// each decodes every document of a bucket in key order, newest last.
func each[T any](b *bbolt.Bucket, reverse bool, fn func(*T) (bool, error)) error {
	c := b.Cursor()
	first, next := c.First, c.Next
	if reverse {
		first, next = c.Last, c.Prev
	}
	for k, v := first(); k != nil; k, v = next() {
		var doc T
		if err := bson.Unmarshal(v, &doc); err != nil {
			return fmt.Errorf("decode %x: %w", k, err)
		}
		more, err := fn(&doc)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func containsAny(haystack string, words []string) bool {
	h := strings.ToLower(haystack)
	for _, w := range words {
		if strings.Contains(h, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func profile(u *models.User) *models.User {
	u.PasswordHash = ""
	u.Avatar = nil
	return u
}

// ---------- users ----------

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = int64(tx.Bucket(bucketUsers).Stats().KeyN)
		return nil
	})
	return n, err
}

func (s *Store) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketUsers), false, func(u *models.User) (bool, error) {
			if u.IsAdmin {
				n++
			}
			return true, nil
		})
	})
	return n, err
}

func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		byEmail := tx.Bucket(bucketUsersByEmail)
		byUsername := tx.Bucket(bucketUsersByUsername)
		if byEmail.Get([]byte(u.Email)) != nil {
			return store.ErrDuplicate
		}
		if u.Username != "" && byUsername.Get([]byte(u.Username)) != nil {
			return store.ErrDuplicate
		}
		if u.ID.IsZero() {
			u.ID = primitive.NewObjectID()
		}
		if err := byEmail.Put([]byte(u.Email), u.ID[:]); err != nil {
			return err
		}
		if u.Username != "" {
			if err := byUsername.Put([]byte(u.Username), u.ID[:]); err != nil {
				return err
			}
		}
		return put(tx.Bucket(bucketUsers), u.ID, u)
	})
}

func (s *Store) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx.Bucket(bucketUsers), id, &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UserProfile(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := s.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return profile(u), nil
}

func (s *Store) UserByLogin(ctx context.Context, login string) (*models.User, error) {
	var u models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketUsersByEmail).Get([]byte(login))
		if raw == nil {
			raw = tx.Bucket(bucketUsersByUsername).Get([]byte(login))
		}
		if raw == nil {
			return store.ErrNotFound
		}
		var id primitive.ObjectID
		copy(id[:], raw)
		return get(tx.Bucket(bucketUsers), id, &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UsersByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	out := make(map[primitive.ObjectID]*models.User, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		for _, id := range ids {
			if _, seen := out[id]; seen {
				continue
			}
			var u models.User
			if err := get(b, id, &u); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			out[id] = profile(&u)
		}
		return nil
	})
	return out, err
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketUsers), true, func(u *models.User) (bool, error) {
			users = append(users, *profile(u))
			return true, nil
		})
	})
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, err
}

func (s *Store) UsernameTaken(ctx context.Context, username string, except primitive.ObjectID) (bool, error) {
	taken := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketUsersByUsername).Get([]byte(username))
		taken = raw != nil && !bytes.Equal(raw, except[:])
		return nil
	})
	return taken, err
}

func (s *Store) UpdateUser(ctx context.Context, id primitive.ObjectID, p models.UserPatch) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		var u models.User
		if err := get(users, id, &u); err != nil {
			return err
		}
		if p.Username != nil && *p.Username != u.Username {
			byUsername := tx.Bucket(bucketUsersByUsername)
			if byUsername.Get([]byte(*p.Username)) != nil {
				return store.ErrDuplicate
			}
			if u.Username != "" {
				if err := byUsername.Delete([]byte(u.Username)); err != nil {
					return err
				}
			}
			if err := byUsername.Put([]byte(*p.Username), id[:]); err != nil {
				return err
			}
			u.Username = *p.Username
		}
		if p.PasswordHash != nil {
			u.PasswordHash = *p.PasswordHash
		}
		if p.IsAdmin != nil {
			u.IsAdmin = *p.IsAdmin
		}
		if p.RemoveAvatar {
			u.Avatar = nil
			u.HasAvatar = false
		}
		if p.Avatar != nil {
			u.Avatar = p.Avatar
			u.HasAvatar = true
		}
		return put(users, id, &u)
	})
}

func (s *Store) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		var u models.User
		if err := get(users, id, &u); err != nil {
			return err
		}
		if err := tx.Bucket(bucketUsersByEmail).Delete([]byte(u.Email)); err != nil {
			return err
		}
		if u.Username != "" {
			if err := tx.Bucket(bucketUsersByUsername).Delete([]byte(u.Username)); err != nil {
				return err
			}
		}
		return users.Delete(id[:])
	})
}

// ---------- reports ----------

func (s *Store) InsertReport(ctx context.Context, r *models.Report) error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketReports), r.ID, r)
	})
}

func (s *Store) ReportByID(ctx context.Context, id primitive.ObjectID) (*models.Report, error) {
	var r models.Report
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx.Bucket(bucketReports), id, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListReports(ctx context.Context, limit int) ([]models.Report, error) {
	reports := []models.Report{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketReports), true, func(r *models.Report) (bool, error) {
			reports = append(reports, *r)
			return len(reports) < limit, nil
		})
	})
	return reports, err
}

func (s *Store) UpdateReport(ctx context.Context, r *models.Report) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketReports)
		var existing models.Report
		if err := get(b, r.ID, &existing); err != nil {
			return err
		}
		existing.Title = r.Title
		existing.Text = r.Text
		existing.Photos = r.Photos
		existing.UpdatedAt = r.UpdatedAt
		return put(b, r.ID, &existing)
	})
}

func (s *Store) DeleteReport(ctx context.Context, id primitive.ObjectID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketReports)
		if b.Get(id[:]) == nil {
			return store.ErrNotFound
		}
		return b.Delete(id[:])
	})
}

func (s *Store) SearchReports(ctx context.Context, words []string, limit int) ([]models.Report, error) {
	reports := []models.Report{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketReports), true, func(r *models.Report) (bool, error) {
			if containsAny(r.Title, words) || containsAny(r.Text, words) {
				reports = append(reports, *r)
			}
			return len(reports) < limit, nil
		})
	})
	return reports, err
}

// ---------- competitions ----------

func (s *Store) InsertCompetition(ctx context.Context, c *models.Competition) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketCompetitions), c.ID, c)
	})
}

func (s *Store) CompetitionByID(ctx context.Context, id primitive.ObjectID) (*models.Competition, error) {
	var c models.Competition
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx.Bucket(bucketCompetitions), id, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCompetitions(ctx context.Context) ([]models.Competition, error) {
	comps := []models.Competition{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketCompetitions), true, func(c *models.Competition) (bool, error) {
			comps = append(comps, *c)
			return true, nil
		})
	})
	return comps, err
}

func (s *Store) UpdateCompetition(ctx context.Context, c *models.Competition) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCompetitions)
		var existing models.Competition
		if err := get(b, c.ID, &existing); err != nil {
			return err
		}
		updated := *c
		updated.CreatedBy = existing.CreatedBy
		updated.CreatedAt = existing.CreatedAt
		return put(b, c.ID, &updated)
	})
}

func (s *Store) DeleteCompetition(ctx context.Context, id primitive.ObjectID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCompetitions)
		if b.Get(id[:]) == nil {
			return store.ErrNotFound
		}
		return b.Delete(id[:])
	})
}

func (s *Store) SearchCompetitions(ctx context.Context, words []string, limit int) ([]models.Competition, error) {
	comps := []models.Competition{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketCompetitions), true, func(c *models.Competition) (bool, error) {
			if containsAny(c.Title, words) || containsAny(c.Location, words) {
				comps = append(comps, *c)
			}
			return len(comps) < limit, nil
		})
	})
	return comps, err
}

// ---------- registrations ----------

func registrationKey(competitionID, userID primitive.ObjectID) []byte {
	key := make([]byte, 0, 24)
	key = append(key, competitionID[:]...)
	return append(key, userID[:]...)
}

func (s *Store) InsertRegistration(ctx context.Context, r *models.Registration) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		keys := tx.Bucket(bucketRegistrationKeys)
		key := registrationKey(r.CompetitionID, r.UserID)
		if keys.Get(key) != nil {
			return store.ErrDuplicate
		}
		if r.ID.IsZero() {
			r.ID = primitive.NewObjectID()
		}
		if err := keys.Put(key, r.ID[:]); err != nil {
			return err
		}
		return put(tx.Bucket(bucketRegistrations), r.ID, r)
	})
}

func (s *Store) RegistrationByID(ctx context.Context, id primitive.ObjectID) (*models.Registration, error) {
	var r models.Registration
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx.Bucket(bucketRegistrations), id, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRegistrations(ctx context.Context, competitionID primitive.ObjectID) ([]models.Registration, error) {
	regs := []models.Registration{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return each(tx.Bucket(bucketRegistrations), false, func(r *models.Registration) (bool, error) {
			if r.CompetitionID == competitionID {
				regs = append(regs, *r)
			}
			return true, nil
		})
	})
	return regs, err
}

func (s *Store) CountTeamRegistrations(ctx context.Context, competitionID primitive.ObjectID) (int64, error) {
	regs, err := s.ListRegistrations(ctx, competitionID)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range regs {
		if r.Type == models.RegistrationTeam {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateRegistration(ctx context.Context, r *models.Registration) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRegistrations)
		var existing models.Registration
		if err := get(b, r.ID, &existing); err != nil {
			return err
		}
		existing.Type = r.Type
		existing.TeamName = r.TeamName
		existing.Participants = r.Participants
		existing.Coach = r.Coach
		existing.UpdatedAt = r.UpdatedAt
		return put(b, r.ID, &existing)
	})
}

func (s *Store) DeleteRegistration(ctx context.Context, id primitive.ObjectID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return deleteRegistration(tx, id)
	})
}

func deleteRegistration(tx *bbolt.Tx, id primitive.ObjectID) error {
	b := tx.Bucket(bucketRegistrations)
	var r models.Registration
	if err := get(b, id, &r); err != nil {
		return err
	}
	if err := tx.Bucket(bucketRegistrationKeys).Delete(registrationKey(r.CompetitionID, r.UserID)); err != nil {
		return err
	}
	return b.Delete(id[:])
}

func (s *Store) DeleteRegistrationsFor(ctx context.Context, competitionID primitive.ObjectID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		var ids []primitive.ObjectID
		err := each(tx.Bucket(bucketRegistrations), false, func(r *models.Registration) (bool, error) {
			if r.CompetitionID == competitionID {
				ids = append(ids, r.ID)
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := deleteRegistration(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}
