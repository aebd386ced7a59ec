package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tabworks/authflow/domain"
)

// AccountRepository implements domain.AccountRepository on MongoDB.
type AccountRepository struct {
	accounts *mongo.Collection
}

// NewAccountRepository creates the repository and ensures the unique
// provider+email index that backs duplicate-account detection.
func NewAccountRepository(ctx context.Context, db *mongo.Database) (*AccountRepository, error) {
	coll := db.Collection(AccountsCollection)

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "user_details.email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create account indexes: %w", err)
	}

	return &AccountRepository{accounts: coll}, nil
}

// CreateAccount implements domain.AccountRepository. Emails are stored
// lowercased so lookups are case-insensitive.
func (r *AccountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.UserDetails.Email = strings.ToLower(account.UserDetails.Email)
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	if _, err := r.accounts.InsertOne(ctx, account); err != nil {
		if isDuplicateKey(err) {
			return domain.ErrAccountExists
		}
		log.Error().Err(err).Str("provider", string(account.Provider)).Msg("Failed to create account")
		return fmt.Errorf("create account: %w", err)
	}

	log.Debug().Str("account_id", account.ID).Str("provider", string(account.Provider)).Msg("Account created")
	return nil
}

// GetAccountByID implements domain.AccountRepository.
func (r *AccountRepository) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	var account domain.Account
	err := r.accounts.FindOne(ctx, bson.M{"_id": id}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return &account, nil
}

// GetAccountByEmail implements domain.AccountRepository.
func (r *AccountRepository) GetAccountByEmail(ctx context.Context, provider domain.Provider, email string) (*domain.Account, error) {
	var account domain.Account
	filter := bson.M{"provider": provider, "user_details.email": strings.ToLower(email)}
	err := r.accounts.FindOne(ctx, filter).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return &account, nil
}

// UpdateAccountTokens implements domain.AccountRepository. This is the
// single write a finalize step performs against an account.
func (r *AccountRepository) UpdateAccountTokens(ctx context.Context, id string, tokens domain.TokenDetails) error {
	update := bson.M{"$set": bson.M{
		"token_details": tokens,
		"updated_at":    time.Now().UTC(),
	}}
	res, err := r.accounts.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("account_id", id).Msg("Failed to update account tokens")
		return fmt.Errorf("update account tokens: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	log.Debug().Str("account_id", id).Msg("Account tokens updated")
	return nil
}

func isDuplicateKey(err error) bool {
	var writeException mongo.WriteException
	if errors.As(err, &writeException) {
		for _, writeError := range writeException.WriteErrors {
			if writeError.Code == 11000 || writeError.Code == 11001 {
				return true
			}
		}
	}
	return false
}

var _ domain.AccountRepository = (*AccountRepository)(nil)
