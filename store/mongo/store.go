// Package mongo implements store.Store on MongoDB.
//
// WithTx uses multi-document transactions, so the deployment must be a
// replica set or a sharded cluster. Transactions are never retried here:
// errors labelled TransientTransactionError surface as
// factor.ErrTransactionFailed and the caller decides.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/factor"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/types"
)

// Collection name constants.
const (
	colState     = "factor_state"
	colInvoices  = "factor_invoices"
	colListings  = "factor_listings"
	colBalances  = "factor_balances"
	colTransfers = "factor_transfers"
	colNonces    = "factor_nonces"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a store over the named database of client.
func New(client *mongo.Client, database string, opts ...Option) *Store {
	s := &Store{
		client: client,
		db:     client.Database(database),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to uri and returns a store over database.
func Open(uri, database string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("factor/mongo: connect: %w", err)
	}
	return New(client, database, opts...), nil
}

// Database returns the underlying database for direct access.
func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// WithTx runs fn in a multi-document transaction. A ctx that already
// carries a session joins it. fn runs exactly once.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return errors.Mark(errors.Wrap(err, "factor/mongo: start session"), factor.ErrTransactionFailed)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	if err := sess.StartTransaction(); err != nil {
		return errors.Mark(errors.Wrap(err, "factor/mongo: begin"), factor.ErrTransactionFailed)
	}

	done := false
	defer func() {
		if !done {
			s.abort(ctx, sess)
		}
	}()

	if err := fn(mongo.NewSessionContext(ctx, sess)); err != nil {
		done = true
		s.abort(ctx, sess)
		return classify(err)
	}

	done = true
	if err := sess.CommitTransaction(ctx); err != nil {
		return classify(errors.Wrap(err, "factor/mongo: commit"))
	}
	return nil
}

func (s *Store) abort(ctx context.Context, sess *mongo.Session) {
	if err := sess.AbortTransaction(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("factor/mongo: abort failed", "error", err)
	}
}

// classify marks errors the server labelled TransientTransactionError as
// retryable. UnknownTransactionCommitResult stays unmarked: the commit may
// have applied.
func classify(err error) error {
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel(labelTransient) {
		return errors.Mark(err, factor.ErrTransactionFailed)
	}
	return err
}

const labelTransient = "TransientTransactionError"

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// ==================== State Store ====================

func (s *Store) GetState(ctx context.Context) (*store.State, error) {
	var m stateModel
	err := s.col(colState).FindOne(ctx, bson.M{"_id": stateID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, factor.ErrNotInitialized
		}
		return nil, fmt.Errorf("factor/mongo: get state: %w", err)
	}
	return fromStateModel(&m), nil
}

func (s *Store) CreateState(ctx context.Context, st *store.State) error {
	_, err := s.col(colState).InsertOne(ctx, &stateModel{
		ID:            stateID,
		Admin:         string(st.Admin),
		Counter:       int64(st.Counter),
		InitializedAt: st.InitializedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return factor.ErrAlreadyInitialized
	}
	if err != nil {
		return fmt.Errorf("factor/mongo: create state: %w", err)
	}
	return nil
}

func (s *Store) NextInvoiceID(ctx context.Context) (uint64, error) {
	var m stateModel
	err := s.col(colState).FindOneAndUpdate(ctx,
		bson.M{"_id": stateID},
		bson.M{"$inc": bson.M{"counter": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return 0, factor.ErrNotInitialized
		}
		return 0, fmt.Errorf("factor/mongo: next invoice id: %w", err)
	}
	return uint64(m.Counter), nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	_, err := s.col(colInvoices).InsertOne(ctx, toInvoiceModel(inv))
	if mongo.IsDuplicateKeyError(err) {
		return factor.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("factor/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.col(colInvoices).FindOne(ctx, bson.M{"_id": int64(invoiceID)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, factor.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("factor/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	res, err := s.col(colInvoices).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("factor/mongo: update invoice: %w", err)
	}
	if res.MatchedCount == 0 {
		return factor.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	return s.findInvoices(ctx, filter, findOpts)
}

func (s *Store) ListInvoicesByParty(ctx context.Context, party types.Address) ([]*invoice.Invoice, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"seller": string(party)},
		bson.M{"current_holder": string(party)},
	}}
	return s.findInvoices(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (s *Store) findInvoices(ctx context.Context, filter bson.M, findOpts *options.FindOptionsBuilder) ([]*invoice.Invoice, error) {
	cursor, err := s.col(colInvoices).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("factor/mongo: list invoices: %w", err)
	}

	var models []invoiceModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("factor/mongo: list invoices: %w", err)
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

// ==================== Listing Store ====================

func (s *Store) PutListing(ctx context.Context, l *listing.Listing) error {
	m := toListingModel(l)
	_, err := s.col(colListings).ReplaceOne(ctx, bson.M{"_id": m.InvoiceID}, m,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("factor/mongo: put listing: %w", err)
	}
	return nil
}

func (s *Store) GetListing(ctx context.Context, invoiceID uint64) (*listing.Listing, error) {
	var m listingModel
	err := s.col(colListings).FindOne(ctx, bson.M{"_id": int64(invoiceID)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, factor.ErrListingNotFound
		}
		return nil, fmt.Errorf("factor/mongo: get listing: %w", err)
	}
	return fromListingModel(&m)
}

func (s *Store) DeleteListing(ctx context.Context, invoiceID uint64) error {
	res, err := s.col(colListings).DeleteOne(ctx, bson.M{"_id": int64(invoiceID)})
	if err != nil {
		return fmt.Errorf("factor/mongo: delete listing: %w", err)
	}
	if res.DeletedCount == 0 {
		return factor.ErrListingNotFound
	}
	return nil
}

func (s *Store) ListListings(ctx context.Context) ([]*listing.Listing, error) {
	cursor, err := s.col(colListings).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("factor/mongo: list listings: %w", err)
	}

	var models []listingModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("factor/mongo: list listings: %w", err)
	}

	result := make([]*listing.Listing, len(models))
	for i := range models {
		l, err := fromListingModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

// ==================== Payment Store ====================

func (s *Store) GetBalance(ctx context.Context, token payment.Token, owner types.Address) (types.Amount, error) {
	var m balanceModel
	err := s.col(colBalances).FindOne(ctx, bson.M{"token": string(token), "owner": string(owner)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return types.ZeroAmount(), nil
		}
		return types.Amount{}, fmt.Errorf("factor/mongo: get balance: %w", err)
	}
	return types.ParseAmount(m.Amount)
}

func (s *Store) SetBalance(ctx context.Context, token payment.Token, owner types.Address, amount types.Amount) error {
	_, err := s.col(colBalances).UpdateOne(ctx,
		bson.M{"token": string(token), "owner": string(owner)},
		bson.M{"$set": bson.M{"amount": amount.String()}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("factor/mongo: set balance: %w", err)
	}
	return nil
}

func (s *Store) RecordTransfer(ctx context.Context, t *payment.Transfer) error {
	_, err := s.col(colTransfers).InsertOne(ctx, toTransferModel(t))
	if err != nil {
		return fmt.Errorf("factor/mongo: record transfer: %w", err)
	}
	return nil
}

func (s *Store) ListTransfers(ctx context.Context, owner types.Address) ([]*payment.Transfer, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"from": string(owner)},
		bson.M{"to": string(owner)},
	}}
	cursor, err := s.col(colTransfers).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("factor/mongo: list transfers: %w", err)
	}

	var models []transferModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("factor/mongo: list transfers: %w", err)
	}

	result := make([]*payment.Transfer, len(models))
	for i := range models {
		t, err := fromTransferModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// ==================== Nonce Store ====================

func (s *Store) UseNonce(ctx context.Context, n *store.Nonce) error {
	if _, err := s.col(colNonces).DeleteMany(ctx,
		bson.M{"expires_at": bson.M{"$lt": n.UsedAt}},
	); err != nil {
		return fmt.Errorf("factor/mongo: prune nonces: %w", err)
	}

	_, err := s.col(colNonces).InsertOne(ctx, toNonceModel(n))
	if mongo.IsDuplicateKeyError(err) {
		return factor.ErrNonceReused
	}
	if err != nil {
		return fmt.Errorf("factor/mongo: use nonce: %w", err)
	}
	return nil
}

// ==================== Store management ====================

// Migrate creates the collections and indexes. Collections must exist
// before the first transaction touches them.
func (s *Store) Migrate(ctx context.Context) error {
	existing, err := s.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("factor/mongo: list collections: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	for _, name := range []string{colState, colInvoices, colListings, colBalances, colTransfers, colNonces} {
		if have[name] {
			continue
		}
		if err := s.db.CreateCollection(ctx, name); err != nil {
			return fmt.Errorf("factor/mongo: create %s: %w", name, err)
		}
	}

	for col, models := range migrationIndexes() {
		if _, err := s.col(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("factor/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// migrationIndexes returns the index definitions for all factor collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colInvoices: {
			{Keys: bson.D{{Key: "seller", Value: 1}}},
			{Keys: bson.D{{Key: "current_holder", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
		},
		colBalances: {
			{
				Keys:    bson.D{{Key: "token", Value: 1}, {Key: "owner", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colTransfers: {
			{Keys: bson.D{{Key: "from", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "to", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colNonces: {
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0),
			},
		},
	}
}
