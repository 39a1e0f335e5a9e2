package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/util"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

// New opens the database, runs migrations, and seeds default data.
// adminPassword may be empty, in which case a random password is generated
// and printed once at startup.
func New(driver, dsn, adminPassword string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.User{},
		&models.Client{},
		&models.AuthorizationCode{},
		&models.AccessToken{},
		&models.RefreshToken{},
		&models.TokenBlacklist{},
		&models.ConsentGrant{},
		&models.AuditLog{},
	); err != nil {
		return nil, err
	}

	store := &Store{db: db}

	// Seed default data
	if err := store.seedData(adminPassword); err != nil {
		log.Printf("Warning: failed to seed data: %v", err)
	}

	return store, nil
}

func (s *Store) seedData(adminPassword string) error {
	// Create default user if not exists
	var userCount int64
	s.db.Model(&models.User{}).Count(&userCount)
	if userCount == 0 {
		password := adminPassword
		if password == "" {
			generated, err := util.CryptoRandomString(16)
			if err != nil {
				return err
			}
			password = generated
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user := &models.User{
			ID:           uuid.New().String(),
			Username:     "admin",
			Email:        "admin@localhost",
			PasswordHash: string(hash),
			Role:         "admin",
		}
		if err := s.db.Create(user).Error; err != nil {
			return err
		}
		if adminPassword == "" {
			log.Printf("Created default user: admin / %s (role: admin)", password)
		} else {
			log.Printf("Created default user: admin (role: admin)")
		}
	}

	// Create default confidential client if not exists
	var clientCount int64
	s.db.Model(&models.Client{}).Count(&clientCount)
	if clientCount == 0 {
		client := &models.Client{
			ClientID:     uuid.New().String(),
			ClientName:   "TokenGate Demo",
			Description:  "Default confidential client for the authorization code flow",
			Scopes:       "openid profile email offline_access",
			GrantTypes:   "authorization_code refresh_token client_credentials",
			RedirectURIs: models.StringArray{"http://localhost:8080/callback"},
			ClientType:   models.ClientTypeConfidential,
			AuthMethod:   models.AuthMethodBasic,
			RequirePKCE:  true,
			IsActive:     true,
		}
		secret, err := client.GenerateClientSecret(context.Background())
		if err != nil {
			return err
		}
		if err := s.db.Create(client).Error; err != nil {
			return err
		}
		log.Printf("Created default client: %s (TokenGate Demo)", client.ClientID)
		log.Printf("Client Secret (save this): %s", secret)
	}

	return nil
}

// User operations
func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(user *models.User) error {
	return s.db.Create(user).Error
}

func (s *Store) UpdateUser(user *models.User) error {
	return s.db.Save(user).Error
}

// Client operations
func (s *Store) GetClient(clientID string) (*models.Client, error) {
	var client models.Client
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *Store) ListClients() ([]models.Client, error) {
	var clients []models.Client
	if err := s.db.Order("created_at DESC").Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) CreateClient(client *models.Client) error {
	return s.db.Create(client).Error
}

func (s *Store) UpdateClient(client *models.Client) error {
	return s.db.Save(client).Error
}

func (s *Store) DeactivateClient(clientID string) error {
	return s.db.Model(&models.Client{}).
		Where("client_id = ?", clientID).
		Update("is_active", false).Error
}

// Consent grant operations

// GetConsentGrant returns the active consent record for a user/client pair.
func (s *Store) GetConsentGrant(userID, clientID string) (*models.ConsentGrant, error) {
	var grant models.ConsentGrant
	err := s.db.Where("user_id = ? AND client_id = ? AND is_active = ?", userID, clientID, true).
		First(&grant).Error
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// UpsertConsentGrant stores the given scope set verbatim on the user/client
// consent record, creating or reactivating it as needed. Callers that want
// widening semantics union the scopes first.
func (s *Store) UpsertConsentGrant(userID, clientID, scopes string) (*models.ConsentGrant, error) {
	var grant models.ConsentGrant
	err := s.db.Where("user_id = ? AND client_id = ?", userID, clientID).First(&grant).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		grant = models.ConsentGrant{
			UUID:      uuid.New().String(),
			UserID:    userID,
			ClientID:  clientID,
			Scopes:    scopes,
			GrantedAt: time.Now(),
			IsActive:  true,
		}
		if err := s.db.Create(&grant).Error; err != nil {
			return nil, err
		}
		return &grant, nil
	}

	grant.Scopes = scopes
	grant.GrantedAt = time.Now()
	grant.RevokedAt = nil
	grant.IsActive = true
	if err := s.db.Save(&grant).Error; err != nil {
		return nil, err
	}
	return &grant, nil
}

// RevokeConsentGrant deactivates the consent record for a user/client pair.
func (s *Store) RevokeConsentGrant(userID, clientID string) error {
	now := time.Now()
	return s.db.Model(&models.ConsentGrant{}).
		Where("user_id = ? AND client_id = ? AND is_active = ?", userID, clientID, true).
		Updates(map[string]any{"is_active": false, "revoked_at": &now}).Error
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM database connection (for transactions)
func (s *Store) DB() *gorm.DB {
	return s.db
}
