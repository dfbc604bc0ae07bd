package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// Money is stored as decimal strings.
type itemDocument struct {
	ProductID string    `bson:"product_id"`
	Name      string    `bson:"name"`
	UnitPrice string    `bson:"unit_price"`
	ImageURL  string    `bson:"image_url,omitempty"`
	Category  string    `bson:"category,omitempty"`
	Quantity  int       `bson:"quantity"`
	AddedAt   time.Time `bson:"added_at"`
}

type cartDocument struct {
	ID        string         `bson:"_id"`
	UserID    string         `bson:"user_id"`
	Items     []itemDocument `bson:"items"`
	Version   int64          `bson:"version"`
	PromoCode string         `bson:"promo_code,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

func toDocument(c *domain.Cart) cartDocument {
	doc := cartDocument{
		ID:        c.ID,
		UserID:    c.OwnerID,
		Items:     make([]itemDocument, 0, len(c.Items)),
		Version:   c.Version,
		PromoCode: c.PromoCode,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for _, it := range c.Items {
		doc.Items = append(doc.Items, itemDocument{
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			UnitPrice: it.Product.UnitPrice.String(),
			ImageURL:  it.Product.ImageURL,
			Category:  it.Product.Category,
			Quantity:  it.Quantity,
			AddedAt:   it.AddedAt,
		})
	}
	return doc
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	c := &domain.Cart{
		ID:        d.ID,
		OwnerID:   d.UserID,
		Items:     make([]domain.LineItem, 0, len(d.Items)),
		Version:   d.Version,
		PromoCode: d.PromoCode,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, it := range d.Items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("cart %s: bad price for %s: %w", d.ID, it.ProductID, err)
		}
		c.Items = append(c.Items, domain.LineItem{
			Product: domain.ProductRef{
				ID:        it.ProductID,
				Name:      it.Name,
				UnitPrice: price,
				ImageURL:  it.ImageURL,
				Category:  it.Category,
			},
			Quantity: it.Quantity,
			AddedAt:  it.AddedAt,
		})
	}
	return c, nil
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection("carts")}
}

func (m *MongoRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	var doc cartDocument

	filter := bson.M{"user_id": userID}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return doc.toDomain()
}

func (m *MongoRepository) Save(ctx context.Context, cart *domain.Cart, expected int64) error {
	doc := toDocument(cart)
	doc.Version = expected + 1

	if expected == 0 {
		// The unique user_id index turns a concurrent first write into a conflict.
		_, err := m.collection.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("failed to create cart: %w", err)
		}
		cart.Version = doc.Version
		return nil
	}

	filter := bson.M{"user_id": cart.OwnerID, "version": expected}
	result, err := m.collection.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrVersionConflict
	}
	cart.Version = doc.Version
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
