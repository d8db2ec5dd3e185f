// Package mongorepo stores users, chats and messages as MongoDB documents.
package mongorepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gopherchat/internal/model"
)

const (
	usersCollection    = "users"
	chatsCollection    = "chats"
	messagesCollection = "messages"
)

// EnsureIndexes creates the unique email index and the list/order indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "deleted", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create user indexes failed: %w", err)
	}
	if _, err := db.Collection(chatsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "updatedAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create chat indexes failed: %w", err)
	}
	if _, err := db.Collection(messagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create message indexes failed: %w", err)
	}
	return nil
}

type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(usersCollection)}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if _, err := r.col.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("insert user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) GetActiveByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email, "deleted": false})
}

func (r *UserRepository) EmailTaken(ctx context.Context, email, exceptID string) (bool, error) {
	filter := bson.M{"email": email}
	if exceptID != "" {
		filter["_id"] = bson.M{"$ne": exceptID}
	}
	n, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("count users by email failed: %w", err)
	}
	return n > 0, nil
}

func (r *UserRepository) ListActive(ctx context.Context) ([]model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("list users failed: %w", err)
	}
	defer cur.Close(ctx)

	users := []model.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users failed: %w", err)
	}
	return users, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, update model.UserUpdate, at time.Time) error {
	set := bson.M{"updatedAt": at}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.PasswordHash != nil {
		set["password"] = *update.PasswordHash
	}
	if update.Admin != nil {
		set["admin"] = *update.Admin
	}
	if _, err := r.col.UpdateByID(ctx, id, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("update user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if _, err := r.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"deleted": true, "updatedAt": at}}); err != nil {
		return fmt.Errorf("soft delete user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) SetRefreshToken(ctx context.Context, id string, token *string) error {
	var value interface{}
	if token != nil {
		value = *token
	}
	if _, err := r.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"refreshToken": value}}); err != nil {
		return fmt.Errorf("set refresh token failed: %w", err)
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var user model.User
	if err := r.col.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user failed: %w", err)
	}
	return &user, nil
}

type ChatRepository struct {
	col *mongo.Collection
}

func NewChatRepository(db *mongo.Database) *ChatRepository {
	return &ChatRepository{col: db.Collection(chatsCollection)}
}

func (r *ChatRepository) Create(ctx context.Context, chat *model.Chat) error {
	if _, err := r.col.InsertOne(ctx, chat); err != nil {
		return fmt.Errorf("insert chat failed: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&chat); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find chat failed: %w", err)
	}
	return &chat, nil
}

func (r *ChatRepository) ListByUserID(ctx context.Context, userID string) ([]model.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"userId": userID, "deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("list chats failed: %w", err)
	}
	defer cur.Close(ctx)

	chats := []model.Chat{}
	if err := cur.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("decode chats failed: %w", err)
	}
	return chats, nil
}

func (r *ChatRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.set(ctx, id, bson.M{"deleted": true, "updatedAt": at}, "soft delete chat")
}

func (r *ChatRepository) UpdateTitle(ctx context.Context, id, title string) error {
	return r.set(ctx, id, bson.M{"title": title}, "update chat title")
}

func (r *ChatRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return r.set(ctx, id, bson.M{"updatedAt": at}, "touch chat")
}

func (r *ChatRepository) SetLastMessage(ctx context.Context, chatID, messageID string) error {
	return r.set(ctx, chatID, bson.M{"lastMessage": messageID}, "set chat last message")
}

func (r *ChatRepository) set(ctx context.Context, id string, fields bson.M, op string) error {
	if _, err := r.col.UpdateByID(ctx, id, bson.M{"$set": fields}); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return nil
}

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection(messagesCollection)}
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	if _, err := r.col.InsertOne(ctx, message); err != nil {
		return fmt.Errorf("insert message failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListByChatID(ctx context.Context, chatID string) ([]model.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{"chatId": chatID}, opts)
}

func (r *MessageRepository) ListRecentByChatID(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return r.find(ctx, bson.M{"chatId": chatID}, opts)
}

func (r *MessageRepository) CountByChatID(ctx context.Context, chatID string) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"chatId": chatID})
	if err != nil {
		return 0, fmt.Errorf("count messages failed: %w", err)
	}
	return n, nil
}

func (r *MessageRepository) GetByIDs(ctx context.Context, ids []string) ([]model.Message, error) {
	if len(ids) == 0 {
		return []model.Message{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find())
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Message, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages failed: %w", err)
	}
	defer cur.Close(ctx)

	messages := []model.Message{}
	if err := cur.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode messages failed: %w", err)
	}
	return messages, nil
}
