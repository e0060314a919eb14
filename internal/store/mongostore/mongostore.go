// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
	"github.com/DanielBronsky/cnpf-feeder/internal/store"
)

const (
	colUsers         = "users"
	colReports       = "reports"
	colCompetitions  = "competitions"
	colRegistrations = "registrations"
)

// profileProjection drops the credential and the avatar payload.
var profileProjection = bson.M{"passwordHash": 0, "avatar": 0}

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// Open connects to uri, verifies the connection and ensures the indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	s := &Store{client: client, db: client.Database(database)}
	if err := s.Ping(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		},
		colReports: {
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		colRegistrations: {
			{Keys: bson.D{{Key: "competitionId", Value: 1}, {Key: "userId", Value: 1}}, Options: unique},
		},
	}
	for col, idx := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create %s indexes: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) c(name string) *mongo.Collection { return s.db.Collection(name) }

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return store.ErrDuplicate
	default:
		return err
	}
}

func findOne[T any](ctx context.Context, col *mongo.Collection, filter any, opts ...*options.FindOneOptions) (*T, error) {
	var doc T
	if err := col.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		return nil, translate(err)
	}
	return &doc, nil
}

func findAll[T any](ctx context.Context, col *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	docs := []T{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func requireMatch(res *mongo.UpdateResult, err error) error {
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func requireDeleted(res *mongo.DeleteResult, err error) error {
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// anyWord builds an $or of case-insensitive substring matches over fields.
func anyWord(words []string, fields ...string) bson.M {
	var or bson.A
	for _, w := range words {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(w), Options: "i"}
		for _, f := range fields {
			or = append(or, bson.M{f: re})
		}
	}
	if len(or) == 0 {
		return bson.M{}
	}
	return bson.M{"$or": or}
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

// ---------- users ----------

// CountUsers counts documents, not collection metadata, so the first-user
// check sees every committed insert.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	return s.c(colUsers).CountDocuments(ctx, bson.M{})
}

func (s *Store) CountAdmins(ctx context.Context) (int64, error) {
	return s.c(colUsers).CountDocuments(ctx, bson.M{"isAdmin": true})
}

func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	_, err := s.c(colUsers).InsertOne(ctx, u)
	return translate(err)
}

func (s *Store) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return findOne[models.User](ctx, s.c(colUsers), bson.M{"_id": id})
}

func (s *Store) UserProfile(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return findOne[models.User](ctx, s.c(colUsers), bson.M{"_id": id},
		options.FindOne().SetProjection(profileProjection))
}

func (s *Store) UserByLogin(ctx context.Context, login string) (*models.User, error) {
	filter := bson.M{"$or": bson.A{bson.M{"email": login}, bson.M{"username": login}}}
	return findOne[models.User](ctx, s.c(colUsers), filter)
}

func (s *Store) UsersByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	out := make(map[primitive.ObjectID]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := findAll[models.User](ctx, s.c(colUsers), bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(profileProjection))
	if err != nil {
		return nil, err
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	return findAll[models.User](ctx, s.c(colUsers), bson.M{},
		options.Find().SetProjection(profileProjection).SetSort(newestFirst))
}

func (s *Store) UsernameTaken(ctx context.Context, username string, except primitive.ObjectID) (bool, error) {
	n, err := s.c(colUsers).CountDocuments(ctx,
		bson.M{"username": username, "_id": bson.M{"$ne": except}},
		options.Count().SetLimit(1))
	return n > 0, err
}

func (s *Store) UpdateUser(ctx context.Context, id primitive.ObjectID, p models.UserPatch) error {
	set := bson.M{}
	unset := bson.M{}
	if p.Username != nil {
		set["username"] = *p.Username
	}
	if p.PasswordHash != nil {
		set["passwordHash"] = *p.PasswordHash
	}
	if p.IsAdmin != nil {
		set["isAdmin"] = *p.IsAdmin
	}
	switch {
	case p.Avatar != nil:
		set["avatar"] = p.Avatar
		set["hasAvatar"] = true
	case p.RemoveAvatar:
		unset["avatar"] = ""
		set["hasAvatar"] = false
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		_, err := s.UserProfile(ctx, id)
		return err
	}
	return requireMatch(s.c(colUsers).UpdateOne(ctx, bson.M{"_id": id}, update))
}

func (s *Store) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	return requireDeleted(s.c(colUsers).DeleteOne(ctx, bson.M{"_id": id}))
}

// ---------- reports ----------

func (s *Store) InsertReport(ctx context.Context, r *models.Report) error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	_, err := s.c(colReports).InsertOne(ctx, r)
	return translate(err)
}

func (s *Store) ReportByID(ctx context.Context, id primitive.ObjectID) (*models.Report, error) {
	return findOne[models.Report](ctx, s.c(colReports), bson.M{"_id": id})
}

func (s *Store) ListReports(ctx context.Context, limit int) ([]models.Report, error) {
	return findAll[models.Report](ctx, s.c(colReports), bson.M{},
		options.Find().SetSort(newestFirst).SetLimit(int64(limit)))
}

func (s *Store) UpdateReport(ctx context.Context, r *models.Report) error {
	update := bson.M{"$set": bson.M{
		"title":     r.Title,
		"text":      r.Text,
		"photos":    r.Photos,
		"updatedAt": r.UpdatedAt,
	}}
	return requireMatch(s.c(colReports).UpdateOne(ctx, bson.M{"_id": r.ID}, update))
}

func (s *Store) DeleteReport(ctx context.Context, id primitive.ObjectID) error {
	return requireDeleted(s.c(colReports).DeleteOne(ctx, bson.M{"_id": id}))
}

func (s *Store) SearchReports(ctx context.Context, words []string, limit int) ([]models.Report, error) {
	return findAll[models.Report](ctx, s.c(colReports), anyWord(words, "title", "text"),
		options.Find().SetSort(newestFirst).SetLimit(int64(limit)))
}

// ---------- competitions ----------

func (s *Store) InsertCompetition(ctx context.Context, c *models.Competition) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	_, err := s.c(colCompetitions).InsertOne(ctx, c)
	return translate(err)
}

func (s *Store) CompetitionByID(ctx context.Context, id primitive.ObjectID) (*models.Competition, error) {
	return findOne[models.Competition](ctx, s.c(colCompetitions), bson.M{"_id": id})
}

func (s *Store) ListCompetitions(ctx context.Context) ([]models.Competition, error) {
	return findAll[models.Competition](ctx, s.c(colCompetitions), bson.M{},
		options.Find().SetSort(newestFirst))
}

func (s *Store) UpdateCompetition(ctx context.Context, c *models.Competition) error {
	update := bson.M{"$set": bson.M{
		"title":            c.Title,
		"startDate":        c.StartDate,
		"endDate":          c.EndDate,
		"location":         c.Location,
		"tours":            c.Tours,
		"openingDate":      c.OpeningDate,
		"openingTime":      c.OpeningTime,
		"individualFormat": c.IndividualFormat,
		"teamFormat":       c.TeamFormat,
		"fee":              c.Fee,
		"teamLimit":        c.TeamLimit,
		"regulations":      c.Regulations,
		"updatedAt":        c.UpdatedAt,
	}}
	return requireMatch(s.c(colCompetitions).UpdateOne(ctx, bson.M{"_id": c.ID}, update))
}

func (s *Store) DeleteCompetition(ctx context.Context, id primitive.ObjectID) error {
	return requireDeleted(s.c(colCompetitions).DeleteOne(ctx, bson.M{"_id": id}))
}

func (s *Store) SearchCompetitions(ctx context.Context, words []string, limit int) ([]models.Competition, error) {
	return findAll[models.Competition](ctx, s.c(colCompetitions), anyWord(words, "title", "location"),
		options.Find().SetSort(newestFirst).SetLimit(int64(limit)))
}

// ---------- registrations ----------

func (s *Store) InsertRegistration(ctx context.Context, r *models.Registration) error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	_, err := s.c(colRegistrations).InsertOne(ctx, r)
	return translate(err)
}

func (s *Store) RegistrationByID(ctx context.Context, id primitive.ObjectID) (*models.Registration, error) {
	return findOne[models.Registration](ctx, s.c(colRegistrations), bson.M{"_id": id})
}

func (s *Store) ListRegistrations(ctx context.Context, competitionID primitive.ObjectID) ([]models.Registration, error) {
	return findAll[models.Registration](ctx, s.c(colRegistrations), bson.M{"competitionId": competitionID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
}

func (s *Store) CountTeamRegistrations(ctx context.Context, competitionID primitive.ObjectID) (int64, error) {
	return s.c(colRegistrations).CountDocuments(ctx,
		bson.M{"competitionId": competitionID, "type": models.RegistrationTeam})
}

func (s *Store) UpdateRegistration(ctx context.Context, r *models.Registration) error {
	set := bson.M{
		"type":         r.Type,
		"teamName":     r.TeamName,
		"participants": r.Participants,
		"coach":        r.Coach,
		"updatedAt":    r.UpdatedAt,
	}
	return requireMatch(s.c(colRegistrations).UpdateOne(ctx, bson.M{"_id": r.ID}, bson.M{"$set": set}))
}

func (s *Store) DeleteRegistration(ctx context.Context, id primitive.ObjectID) error {
	return requireDeleted(s.c(colRegistrations).DeleteOne(ctx, bson.M{"_id": id}))
}

func (s *Store) DeleteRegistrationsFor(ctx context.Context, competitionID primitive.ObjectID) error {
	_, err := s.c(colRegistrations).DeleteMany(ctx, bson.M{"competitionId": competitionID})
	return err
}

// connectTimeout bounds Open when the caller passes a context without a deadline.
const connectTimeout = 10 * time.Second

// OpenWithTimeout is Open with a bounded connect and index build.
func OpenWithTimeout(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return Open(ctx, uri, database)
}
