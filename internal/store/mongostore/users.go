package mongostore

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/zhouzirui/streamchat/backend/internal/model/user"
)

// UserStore implements user.Store on a MongoDB collection.
type UserStore struct {
	coll *mongo.Collection
}

// NewUserStore returns a UserStore using the given collection.
func NewUserStore(coll *mongo.Collection) *UserStore {
	return &UserStore{coll: coll}
}

type userDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Name      string        `bson:"name"`
	Email     string        `bson:"email"`
	Password  string        `bson:"password"`
	CreatedAt time.Time     `bson:"createdAt"`
}

func (d userDoc) toModel() user.User {
	return user.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
	}
}

// Create inserts a new user. The unique email index turns duplicate
// registrations into user.ErrDuplicateEmail.
func (s *UserStore) Create(ctx context.Context, u user.User) (user.User, error) {
	doc := userDoc{
		Name:      u.Name,
		Email:     strings.ToLower(strings.TrimSpace(u.Email)),
		Password:  u.PasswordHash,
		CreatedAt: time.Now().UTC(),
	}

	result, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrDuplicateEmail
		}
		return user.User{}, err
	}

	doc.ID = result.InsertedID.(bson.ObjectID)
	return doc.toModel(), nil
}

// FindByEmail looks a user up by normalized email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (user.User, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return doc.toModel(), nil
}
