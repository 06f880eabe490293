package authn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/cache"
	"github.com/patr-cloud/patr-api/internal/db"
)

// Geolocator resolves a caller IP to a rough location. The production
// implementation, IPInfoGeolocator, calls an IP-info provider over HTTP
// (its tests use an httptest server); it is an interface here so the
// login flow stays unit-testable without a live network dependency.
type Geolocator interface {
	Lookup(ctx context.Context, ip net.IP) (Geo, error)
}

// Geo is the subset of an IP-info lookup the login flow persists.
type Geo struct {
	Bogon    bool
	Lat, Lng float64
	Country  string
	Region   string
	City     string
	Timezone string
}

// LoginRequest is the typed, preprocessed body of POST /auth/login.
type LoginRequest struct {
	UserID   string // username or recovery email; phone numbers are not matched
	Password string
	MFAOTP   *string
}

// LoginResult is returned to the endpoint handler for envelope encoding.
type LoginResult struct {
	AccessToken  string
	RefreshToken string // "{login_id}.{uuid}"
}

// LoginService implements the interactive-session half of spec section
// 4.2: password+MFA verification, login_id/refresh-token issuance, and
// geo-stamped WebLogin persistence.
type LoginService struct {
	hasher     *Hasher
	tokens     *TokenManager
	geo        Geolocator
	allowPrivateIPs bool
	refreshTTL time.Duration
}

func NewLoginService(hasher *Hasher, tokens *TokenManager, geo Geolocator, allowPrivateIPs bool, refreshTTL time.Duration) *LoginService {
	return &LoginService{hasher: hasher, tokens: tokens, geo: geo, allowPrivateIPs: allowPrivateIPs, refreshTTL: refreshTTL}
}

// Login runs the full flow inside the caller-supplied transaction (the
// endpoint framework's data-store layer owns the transaction boundary,
// per spec section 4.1 step 2).
func (s *LoginService) Login(ctx context.Context, tx *gorm.DB, req LoginRequest, clientIP net.IP, userAgent string) (LoginResult, error) {
	var user db.User
	composedPhone := req.UserID // matched as-is against username and recovery_email; the recovery phone columns are not searched
	err := tx.WithContext(ctx).
		Where("username = ? OR recovery_email = ?", req.UserID, composedPhone).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LoginResult{}, apierror.New(apierror.CodeUserNotFound, "no user matches the given identifier")
	}
	if err != nil {
		return LoginResult{}, apierror.Server(err)
	}

	match, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, apierror.Server(err)
	}
	if !match {
		return LoginResult{}, apierror.New(apierror.CodeInvalidPassword, "incorrect password")
	}

	if user.MFASecret != nil {
		if req.MFAOTP == nil {
			return LoginResult{}, apierror.New(apierror.CodeMFARequired, "this account requires a TOTP code")
		}
		if !ValidateOTP(*user.MFASecret, *req.MFAOTP) {
			return LoginResult{}, apierror.New(apierror.CodeMFAOTPInvalid, "the supplied TOTP code is invalid")
		}
	}

	geo, err := s.geo.Lookup(ctx, clientIP)
	if err != nil {
		return LoginResult{}, apierror.Server(fmt.Errorf("geolocation lookup failed: %w", err))
	}
	if geo.Bogon && !s.allowPrivateIPs {
		return LoginResult{}, apierror.Server(fmt.Errorf("cannot use bogon ip address: %s", clientIP))
	}

	refreshSecret := uuid.New().String()
	refreshHash, err := s.hasher.Hash(refreshSecret)
	if err != nil {
		return LoginResult{}, apierror.Server(err)
	}

	loginID := uuid.New().String()
	now := time.Now().UTC()

	login := db.UserLogin{LoginID: loginID, UserID: user.ID, LoginType: db.LoginTypeWeb, CreatedAt: now}
	if err := tx.WithContext(ctx).Create(&login).Error; err != nil {
		return LoginResult{}, apierror.Server(err)
	}

	webLogin := db.WebLogin{
		LoginID:          loginID,
		UserID:           user.ID,
		RefreshTokenHash: refreshHash,
		TokenExpiry:      now.Add(s.refreshTTL),
		CreatedIP:        clientIP.String(),
		CreatedLat:       geo.Lat,
		CreatedLng:       geo.Lng,
		CreatedUA:        userAgent,
		CreatedCountry:   geo.Country,
		CreatedRegion:    geo.Region,
		CreatedCity:      geo.City,
		CreatedTimezone:  geo.Timezone,
		LastActivityAt:   now,
		LastActivityIP:   clientIP.String(),
		LastActivityUA:   userAgent,
		CreatedAt:        now,
	}
	if err := tx.WithContext(ctx).Create(&webLogin).Error; err != nil {
		return LoginResult{}, apierror.Server(err)
	}

	access, err := s.tokens.IssueAccessToken(loginID, user.ID)
	if err != nil {
		return LoginResult{}, apierror.Server(err)
	}

	return LoginResult{
		AccessToken:  access,
		RefreshToken: fmt.Sprintf("%s.%s", loginID, refreshSecret),
	}, nil
}

// InvalidateSession revokes a single login (logout).
func (s *LoginService) InvalidateSession(ctx context.Context, cacheClient *cache.Client, loginID string, ttl time.Duration) error {
	return cacheClient.RevokeLogin(ctx, loginID, ttl)
}
