package services

import (
  "context"
  "strings"
  "time"

  "github.com/golang-jwt/jwt/v5"
  "github.com/google/uuid"
  "golang.org/x/crypto/bcrypt"
  "gorm.io/gorm"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/normalization"
  "github.com/yungbote/chatdesk-backend/internal/repos"
  "github.com/yungbote/chatdesk-backend/internal/requestdata"
  "github.com/yungbote/chatdesk-backend/internal/types"
)

type AuthService interface {
  RegisterUser(ctx context.Context, user *types.User) error
  LoginUser(ctx context.Context, email, password string) (string, string, error)
  RefreshUser(ctx context.Context) (string, string, error)
  LogoutUser(ctx context.Context) error
  SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
  GetAccessTTL() time.Duration
}

type authService struct {
  db            *gorm.DB
  log           *logger.Logger
  userRepo      repos.UserRepo
  userTokenRepo repos.UserTokenRepo
  jwtSecretKey  string
  accessTTL     time.Duration
  refreshTTL    time.Duration
}

func NewAuthService(
  db *gorm.DB,
  log *logger.Logger,
  userRepo repos.UserRepo,
  userTokenRepo repos.UserTokenRepo,
  jwtSecretKey string,
  accessTTL time.Duration,
  refreshTTL time.Duration,
) AuthService {
  serviceLog := log.With("service", "AuthService")
  return &authService{
    db:            db,
    log:           serviceLog,
    userRepo:      userRepo,
    userTokenRepo: userTokenRepo,
    jwtSecretKey:  jwtSecretKey,
    accessTTL:     accessTTL,
    refreshTTL:    refreshTTL,
  }
}

func (as *authService) RegisterUser(ctx context.Context, user *types.User) error {
  user.Email = normalization.ParseInputString(user.Email)
  user.FirstName = normalization.TrimInputString(user.FirstName)
  user.LastName = normalization.TrimInputString(user.LastName)

  if user.Email == "" || !strings.Contains(user.Email, "@") {
    return apierr.Validation("a valid email is required")
  }
  if len(user.Password) < 8 {
    return apierr.Validation("password must be at least 8 characters")
  }

  exists, err := as.userRepo.EmailExists(ctx, nil, user.Email)
  if err != nil {
    return apierr.Internal(err)
  }
  if exists {
    return apierr.Conflict("email already registered")
  }

  hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
  if err != nil {
    return apierr.Internal(err)
  }
  user.Password = string(hashed)
  user.ID = uuid.New()

  if _, err := as.userRepo.Create(ctx, nil, []*types.User{user}); err != nil {
    return apierr.Internal(err)
  }
  as.log.Info("User registered", "user_id", user.ID)
  return nil
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (string, string, error) {
  email = normalization.ParseInputString(email)
  if email == "" || password == "" {
    return "", "", apierr.Validation("email and password are required")
  }

  users, err := as.userRepo.GetByEmails(ctx, nil, []string{email})
  if err != nil {
    return "", "", apierr.Internal(err)
  }
  if len(users) == 0 {
    return "", "", apierr.Unauthorized("invalid email or password")
  }
  user := users[0]

  if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
    return "", "", apierr.Unauthorized("invalid email or password")
  }

  var accessToken, refreshToken string
  txErr := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    // One live token row per user. Stale rows are cleared on login.
    if err := as.userTokenRepo.FullDeleteByUserIDs(ctx, tx, []uuid.UUID{user.ID}); err != nil {
      return apierr.Internal(err)
    }
    var issueErr error
    accessToken, refreshToken, issueErr = as.issueTokens(ctx, tx, user)
    return issueErr
  })
  if txErr != nil {
    return "", "", txErr
  }
  return accessToken, refreshToken, nil
}

func (as *authService) RefreshUser(ctx context.Context) (string, string, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.RefreshToken == "" {
    return "", "", apierr.Unauthorized("missing refresh token")
  }

  tokens, err := as.userTokenRepo.GetByRefreshTokens(ctx, nil, []string{rd.RefreshToken})
  if err != nil {
    return "", "", apierr.Internal(err)
  }
  if len(tokens) == 0 {
    return "", "", apierr.Unauthorized("unknown refresh token")
  }
  stored := tokens[0]
  if stored.ExpiresAt.Before(time.Now()) {
    return "", "", apierr.Unauthorized("refresh token expired")
  }

  users, err := as.userRepo.GetByIDs(ctx, nil, []uuid.UUID{stored.UserID})
  if err != nil {
    return "", "", apierr.Internal(err)
  }
  if len(users) == 0 {
    return "", "", apierr.Unauthorized("user no longer exists")
  }

  var accessToken, refreshToken string
  txErr := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if err := as.userTokenRepo.FullDeleteByIDs(ctx, tx, []uuid.UUID{stored.ID}); err != nil {
      return apierr.Internal(err)
    }
    var issueErr error
    accessToken, refreshToken, issueErr = as.issueTokens(ctx, tx, users[0])
    return issueErr
  })
  if txErr != nil {
    return "", "", txErr
  }
  return accessToken, refreshToken, nil
}

func (as *authService) LogoutUser(ctx context.Context) error {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.TokenString == "" {
    return apierr.Unauthorized("missing access token")
  }
  tokens, err := as.userTokenRepo.GetByAccessTokens(ctx, nil, []string{rd.TokenString})
  if err != nil {
    return apierr.Internal(err)
  }
  if len(tokens) == 0 {
    return nil
  }
  if err := as.userTokenRepo.FullDeleteByTokens(ctx, nil, tokens); err != nil {
    return apierr.Internal(err)
  }
  return nil
}

// SetContextFromToken validates the bearer token, checks it is still stored,
// and attaches the request data carrier to ctx.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
  claims := jwt.RegisteredClaims{}
  token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
    if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
      return nil, apierr.Unauthorized("unexpected signing method %v", t.Header["alg"])
    }
    return []byte(as.jwtSecretKey), nil
  })
  if err != nil || !token.Valid {
    return ctx, apierr.Unauthorized("invalid access token")
  }

  userID, err := uuid.Parse(claims.Subject)
  if err != nil {
    return ctx, apierr.Unauthorized("invalid token subject")
  }

  stored, err := as.userTokenRepo.GetByAccessTokens(ctx, nil, []string{tokenString})
  if err != nil {
    return ctx, apierr.Internal(err)
  }
  if len(stored) == 0 {
    return ctx, apierr.Unauthorized("token revoked")
  }

  return requestdata.WithRequestData(ctx, &requestdata.RequestData{
    TokenString:  tokenString,
    RefreshToken: stored[0].RefreshToken,
    UserID:       userID,
  }), nil
}

func (as *authService) GetAccessTTL() time.Duration {
  return as.accessTTL
}

func (as *authService) issueTokens(ctx context.Context, tx *gorm.DB, user *types.User) (string, string, error) {
  now := time.Now()
  // The jti keeps tokens unique even when two are minted within the same
  // second.
  claims := jwt.RegisteredClaims{
    Subject:   user.ID.String(),
    ID:        uuid.NewString(),
    IssuedAt:  jwt.NewNumericDate(now),
    ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
  }
  accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(as.jwtSecretKey))
  if err != nil {
    return "", "", apierr.Internal(err)
  }
  refreshToken := uuid.NewString()

  userToken := &types.UserToken{
    ID:           uuid.New(),
    UserID:       user.ID,
    AccessToken:  accessToken,
    RefreshToken: refreshToken,
    ExpiresAt:    now.Add(as.refreshTTL),
  }
  if _, err := as.userTokenRepo.Create(ctx, tx, []*types.UserToken{userToken}); err != nil {
    return "", "", apierr.Internal(err)
  }
  return accessToken, refreshToken, nil
}
