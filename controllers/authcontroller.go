package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/twinj/uuid"
	"go.uber.org/zap"

	"github.com/zarkopopovski/persona-chat/db"
	"github.com/zarkopopovski/persona-chat/models"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

var errUnauthorized = errors.New("unauthorized")

type AuthController struct {
	DBManager     *db.DBManager
	AccessSecret  string
	RefreshSecret string
	Logger        *zap.Logger
}

// Authenticate resolves the bearer token of r to a user id. On failure it
// answers 401 and returns false.
func (aController *AuthController) Authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	metaData, err := aController.ExtractTokenMetadata(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}

	userID, err := aController.FetchAuth(r.Context(), metaData)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userID, true
}

func (aController *AuthController) ExtractToken(r *http.Request) string {
	bearToken := r.Header.Get("Authorization")
	strArr := strings.Split(bearToken, " ")
	if len(strArr) == 2 && strings.EqualFold(strArr[0], "Bearer") {
		return strArr[1]
	}
	return ""
}

func (aController *AuthController) VerifyToken(tokenString, secret string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
}

func (aController *AuthController) ExtractTokenMetadata(r *http.Request) (*models.AccessDetails, error) {
	tokenString := aController.ExtractToken(r)
	if tokenString == "" {
		return nil, errUnauthorized
	}

	token, err := aController.VerifyToken(tokenString, aController.AccessSecret)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errUnauthorized
	}

	accessUuid, ok := claims["access_uuid"].(string)
	if !ok {
		return nil, errUnauthorized
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, errUnauthorized
	}

	return &models.AccessDetails{AccessUuid: accessUuid, UserID: userID}, nil
}

// FetchAuth checks that the access token is still issued to the user named
// in its claims.
func (aController *AuthController) FetchAuth(ctx context.Context, authD *models.AccessDetails) (string, error) {
	userID, err := aController.DBManager.TokenUserID(ctx, models.TokenTypeAccess, authD.AccessUuid)
	if err != nil {
		return "", err
	}
	if userID != authD.UserID {
		return "", errUnauthorized
	}
	return userID, nil
}

func (aController *AuthController) CreateToken(userID string) (*models.TokenDetails, error) {
	now := time.Now()

	td := &models.TokenDetails{}
	td.AtExpires = now.Add(accessTokenTTL).Unix()
	td.AccessUuid = uuid.NewV4().String()

	td.RtExpires = now.Add(refreshTokenTTL).Unix()
	td.RefreshUuid = td.AccessUuid + "++" + userID

	var err error
	atClaims := jwt.MapClaims{}
	atClaims["authorized"] = true
	atClaims["access_uuid"] = td.AccessUuid
	atClaims["user_id"] = userID
	atClaims["exp"] = td.AtExpires
	at := jwt.NewWithClaims(jwt.SigningMethodHS256, atClaims)
	td.AccessToken, err = at.SignedString([]byte(aController.AccessSecret))
	if err != nil {
		return nil, err
	}

	rtClaims := jwt.MapClaims{}
	rtClaims["refresh_uuid"] = td.RefreshUuid
	rtClaims["user_id"] = userID
	rtClaims["exp"] = td.RtExpires
	rt := jwt.NewWithClaims(jwt.SigningMethodHS256, rtClaims)
	td.RefreshToken, err = rt.SignedString([]byte(aController.RefreshSecret))
	if err != nil {
		return nil, err
	}
	return td, nil
}

func (aController *AuthController) CreateAuth(ctx context.Context, userID string, td *models.TokenDetails) error {
	err := aController.DBManager.InsertToken(ctx, models.TokenTypeAccess, td.AccessUuid, userID, time.Unix(td.AtExpires, 0))
	if err != nil {
		return err
	}
	return aController.DBManager.InsertToken(ctx, models.TokenTypeRefresh, td.RefreshUuid, userID, time.Unix(td.RtExpires, 0))
}

// IssueTokens signs a fresh access/refresh pair for userID and records both.
func (aController *AuthController) IssueTokens(ctx context.Context, userID string) (*models.TokenDetails, error) {
	td, err := aController.CreateToken(userID)
	if err != nil {
		return nil, fmt.Errorf("sign tokens: %w", err)
	}
	if err := aController.CreateAuth(ctx, userID, td); err != nil {
		return nil, fmt.Errorf("store tokens: %w", err)
	}
	return td, nil
}

func (aController *AuthController) Refresh(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := parseRequestBody(r, &body); err != nil || body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	token, err := aController.VerifyToken(body.RefreshToken, aController.RefreshSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Refresh token expired")
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		writeError(w, http.StatusUnauthorized, "Refresh token expired")
		return
	}

	refreshUuid, okUuid := claims["refresh_uuid"].(string)
	userID, okUser := claims["user_id"].(string)
	if !okUuid || !okUser {
		writeError(w, http.StatusUnprocessableEntity, "Malformed refresh token")
		return
	}

	ctx := r.Context()

	deleted, err := aController.DBManager.DeleteToken(ctx, models.TokenTypeRefresh, refreshUuid)
	if err != nil || deleted == 0 {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	accessUuid := strings.TrimSuffix(refreshUuid, "++"+userID)
	if _, err := aController.DBManager.DeleteToken(ctx, models.TokenTypeAccess, accessUuid); err != nil {
		aController.Logger.Warn("failed to revoke access token", zap.Error(err))
	}

	td, err := aController.IssueTokens(ctx, userID)
	if err != nil {
		aController.Logger.Error("failed to issue tokens", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"access_token":  td.AccessToken,
		"refresh_token": td.RefreshToken,
	})
}

func (aController *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	metadata, err := aController.ExtractTokenMetadata(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := aController.DeleteTokens(r.Context(), metadata); err != nil {
		aController.Logger.Error("failed to delete tokens", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (aController *AuthController) DeleteTokens(ctx context.Context, authD *models.AccessDetails) error {
	refreshUuid := authD.AccessUuid + "++" + authD.UserID

	if _, err := aController.DBManager.DeleteToken(ctx, models.TokenTypeAccess, authD.AccessUuid); err != nil {
		return err
	}
	if _, err := aController.DBManager.DeleteToken(ctx, models.TokenTypeRefresh, refreshUuid); err != nil {
		return err
	}
	return nil
}
