package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/authn"
	"github.com/patr-cloud/patr-api/internal/endpoint"
)

type signUpRequestBody struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	RecoveryEmail string `json:"recovery_email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
}

type signUpResponse struct {
	Username string `json:"username"`
}

type completeSignUpRequestBody struct {
	Username string `json:"username"`
	OTP      string `json:"otp"`
}

type completeSignUpResponse struct {
	UserID string `json:"user_id"`
}

type loginRequestBody struct {
	UserID   string  `json:"user_id"`
	Password string  `json:"password"`
	MFAOTP   *string `json:"mfa_otp,omitempty"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type renewAccessTokenRequestBody struct {
	RefreshToken string `json:"refresh_token"`
}

type renewAccessTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// RegisterAuthRoutes binds the interactive-session lifecycle named in
// the endpoint inventory (spec section 6): sign-up, complete-sign-up,
// login, logout, and renew-access-token.
func RegisterAuthRoutes(router gin.IRoutes, deps endpoint.Deps, signUp *authn.SignUpService, login *authn.LoginService, refresh *authn.RefreshService, refreshTokenTTL time.Duration) {
	endpoint.Register(router, endpoint.Descriptor[signUpRequestBody, signUpResponse]{
		Method: "POST",
		Path:   "/auth/sign-up",
		Auth:   endpoint.NoAuthentication,
		Preprocess: func(req *signUpRequestBody) error {
			if req.Username == "" || req.Password == "" || req.RecoveryEmail == "" {
				return apierror.New(apierror.CodeWrongParameters, "username, password and recovery_email are required")
			}
			return nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *signUpRequestBody) (*signUpResponse, error) {
			_, err := signUp.SignUp(ctx, rc.Tx, authn.SignUpRequest{
				Username:      req.Username,
				Password:      req.Password,
				RecoveryEmail: req.RecoveryEmail,
				FirstName:     req.FirstName,
				LastName:      req.LastName,
			})
			if err != nil {
				return nil, err
			}
			return &signUpResponse{Username: req.Username}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[completeSignUpRequestBody, completeSignUpResponse]{
		Method: "POST",
		Path:   "/auth/complete-sign-up",
		Auth:   endpoint.NoAuthentication,
		Preprocess: func(req *completeSignUpRequestBody) error {
			if req.Username == "" || req.OTP == "" {
				return apierror.New(apierror.CodeWrongParameters, "username and otp are required")
			}
			return nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *completeSignUpRequestBody) (*completeSignUpResponse, error) {
			user, err := signUp.CompleteSignUp(ctx, rc.Tx, authn.CompleteSignUpRequest{Username: req.Username, OTP: req.OTP})
			if err != nil {
				return nil, err
			}
			return &completeSignUpResponse{UserID: user.ID}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[loginRequestBody, loginResponse]{
		Method: "POST",
		Path:   "/auth/login",
		Auth:   endpoint.NoAuthentication,
		Preprocess: func(req *loginRequestBody) error {
			if req.UserID == "" || req.Password == "" {
				return apierror.New(apierror.CodeWrongParameters, "user_id and password are required")
			}
			return nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *loginRequestBody) (*loginResponse, error) {
			result, err := login.Login(ctx, rc.Tx, authn.LoginRequest{
				UserID:   req.UserID,
				Password: req.Password,
				MFAOTP:   req.MFAOTP,
			}, rc.ClientIP, rc.Gin.GetHeader("User-Agent"))
			if err != nil {
				return nil, err
			}
			return &loginResponse{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, struct{}]{
		Method: "POST",
		Path:   "/auth/logout",
		Auth:   endpoint.PlainTokenAuthenticator,
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*struct{}, error) {
			if err := refresh.Logout(ctx, rc.Principal.LoginID, refreshTokenTTL); err != nil {
				return nil, apierror.Server(err)
			}
			return &struct{}{}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[renewAccessTokenRequestBody, renewAccessTokenResponse]{
		Method: "POST",
		Path:   "/auth/renew-access-token",
		Auth:   endpoint.NoAuthentication,
		Preprocess: func(req *renewAccessTokenRequestBody) error {
			if req.RefreshToken == "" {
				return apierror.New(apierror.CodeWrongParameters, "refresh_token is required")
			}
			return nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *renewAccessTokenRequestBody) (*renewAccessTokenResponse, error) {
			access, err := refresh.RenewAccessToken(ctx, rc.Tx, req.RefreshToken)
			if err != nil {
				return nil, err
			}
			return &renewAccessTokenResponse{AccessToken: access}, nil
		},
	}, deps)
}
