package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/spf13/viper"
	apperrors "github.com/virtualbank/backend/internal/errors"
)

// Provider creates identities and turns bearer tokens back into uids.
type Provider interface {
	CreateIdentity(ctx context.Context, email, password string) (string, error)
	DeleteIdentity(ctx context.Context, uid string) error
	IssueToken(ctx context.Context, email, password string) (token string, uid string, err error)
	Authenticate(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

type Config struct {
	SecretKey []byte
	Expiry    time.Duration
	Argon2    Argon2Params
}

// LoadConfig reads jwt.* and argon2.* settings from viper
func LoadConfig() Config {
	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	return Config{
		SecretKey: []byte(viper.GetString("jwt.secret_key")),
		Expiry:    time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour,
		Argon2: Argon2Params{
			Time:       uint32(viper.GetInt("argon2.time")),
			Memory:     uint32(viper.GetInt("argon2.memory")),
			Threads:    uint8(viper.GetInt("argon2.threads")),
			KeyLength:  uint32(viper.GetInt("argon2.key_length")),
			SaltLength: viper.GetInt("argon2.salt_length"),
		},
	}
}

type Claims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// JWTProvider stores credentials in Postgres and issues HS256 tokens. Revoked
// tokens are blacklisted in Redis when a client is configured.
type JWTProvider struct {
	db     *sql.DB
	redis  *redis.Client
	config Config
	now    func() time.Time
}

func NewJWTProvider(db *sql.DB, redisClient *redis.Client, config Config) *JWTProvider {
	return &JWTProvider{
		db:     db,
		redis:  redisClient,
		config: config,
		now:    time.Now,
	}
}

func (p *JWTProvider) CreateIdentity(ctx context.Context, email, password string) (string, error) {
	hash, err := hashPassword(password, p.config.Argon2)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	uid := uuid.NewString()
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO identities (uid, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`,
		uid, strings.ToLower(email), hash, p.now().UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return "", apperrors.ErrAccountAlreadyExists
		}
		return "", apperrors.NewPersistenceError("create identity", err)
	}

	log.Printf("[AUTH] Identity created - uid: %s, email: %s", uid, email)
	return uid, nil
}

// DeleteIdentity removes an identity whose ledger account could not be initialized.
func (p *JWTProvider) DeleteIdentity(ctx context.Context, uid string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM identities WHERE uid = $1`, uid); err != nil {
		return apperrors.NewPersistenceError("delete identity", err)
	}
	return nil
}

func (p *JWTProvider) IssueToken(ctx context.Context, email, password string) (string, string, error) {
	var uid, hash string
	err := p.db.QueryRowContext(ctx, `SELECT uid, password_hash FROM identities WHERE email = $1`,
		strings.ToLower(email)).Scan(&uid, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return "", "", apperrors.NewPersistenceError("load identity", err)
	}

	if !verifyPassword(password, hash, p.config.Argon2) {
		return "", "", apperrors.ErrInvalidCredentials
	}

	token, err := p.generateToken(uid)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return token, uid, nil
}

func (p *JWTProvider) generateToken(uid string) (string, error) {
	now := p.now()
	claims := Claims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.config.Expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.config.SecretKey)
}

func (p *JWTProvider) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return p.config.SecretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(p.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	if claims.UID == "" {
		return nil, fmt.Errorf("%w: token has no uid", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

func (p *JWTProvider) Authenticate(ctx context.Context, tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperrors.ErrUnauthorized
	}
	claims, err := p.parse(tokenString)
	if err != nil {
		return "", err
	}

	if p.redis != nil {
		revoked, err := p.redis.Exists(ctx, blacklistKey(claims.ID)).Result()
		if err != nil {
			log.Printf("[AUTH] Blacklist lookup failed, continuing: %v", err)
		} else if revoked > 0 {
			return "", fmt.Errorf("%w: token revoked", apperrors.ErrUnauthorized)
		}
	}
	return claims.UID, nil
}

// Revoke blacklists the token until it would have expired anyway.
func (p *JWTProvider) Revoke(ctx context.Context, tokenString string) error {
	claims, err := p.parse(tokenString)
	if err != nil {
		return err
	}
	if p.redis == nil {
		return nil
	}

	ttl := claims.ExpiresAt.Time.Sub(p.now())
	if ttl <= 0 {
		return nil
	}
	if err := p.redis.Set(ctx, blacklistKey(claims.ID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

func blacklistKey(tokenID string) string {
	return fmt.Sprintf("blacklist:%s", tokenID)
}

var _ Provider = (*JWTProvider)(nil)
