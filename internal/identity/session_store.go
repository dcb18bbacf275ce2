package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SessionStore is the durable local record of who is signed in on this
// device. Load returns "" when nobody is.
type SessionStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, uid string) error
	Clear(ctx context.Context) error
}

// DeviceSession is the sessions table row
type DeviceSession struct {
	DeviceID  string `gorm:"primaryKey"`
	UID       string `gorm:"not null"`
	UpdatedAt time.Time
}

// GormSessionStore implements SessionStore for PostgreSQL
type GormSessionStore struct {
	db       *gorm.DB
	deviceID string
}

// NewGormSessionStore migrates the sessions table and creates the store
func NewGormSessionStore(db *gorm.DB, deviceID string) (*GormSessionStore, error) {
	if err := db.AutoMigrate(&DeviceSession{}); err != nil {
		return nil, err
	}
	return &GormSessionStore{db: db, deviceID: deviceID}, nil
}

func (s *GormSessionStore) Load(ctx context.Context) (string, error) {
	var row DeviceSession
	err := s.db.WithContext(ctx).Where("device_id = ?", s.deviceID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.UID, nil
}

func (s *GormSessionStore) Save(ctx context.Context, uid string) error {
	return s.db.WithContext(ctx).Save(&DeviceSession{DeviceID: s.deviceID, UID: uid}).Error
}

func (s *GormSessionStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Delete(&DeviceSession{}, "device_id = ?", s.deviceID).Error
}

// RedisSessionStore implements SessionStore on Redis under session:{deviceID}
type RedisSessionStore struct {
	rdb *redis.Client
	key string
}

func NewRedisSessionStore(rdb *redis.Client, deviceID string) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, key: "session:" + deviceID}
}

func (s *RedisSessionStore) Load(ctx context.Context) (string, error) {
	uid, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return uid, err
}

func (s *RedisSessionStore) Save(ctx context.Context, uid string) error {
	return s.rdb.Set(ctx, s.key, uid, 0).Err()
}

func (s *RedisSessionStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

// MemorySessionStore keeps the session for the lifetime of the process.
type MemorySessionStore struct {
	mu  sync.Mutex
	uid string
}

func NewMemorySessionStore() *MemorySessionStore { return &MemorySessionStore{} }

func (s *MemorySessionStore) Load(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uid, nil
}

func (s *MemorySessionStore) Save(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uid = uid
	return nil
}

func (s *MemorySessionStore) Clear(context.Context) error {
	return s.Save(context.Background(), "")
}
