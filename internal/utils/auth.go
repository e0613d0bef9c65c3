package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateTokens generates Access and Refresh tokens for a user id
func GenerateTokens(userID uint, username, secret string) (string, string, error) {
	claims := jwt.MapClaims{
		"id":       userID,
		"username": username,
		"type":     "access",
		"exp":      time.Now().Add(time.Hour * 8).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", "", err
	}

	refreshClaims := jwt.MapClaims{
		"id":   userID,
		"type": "refresh",
		"exp":  time.Now().Add(time.Hour * 24 * 30).Unix(),
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte(secret))
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

// ValidateToken parses and validates a token
func ValidateToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// AccessTokenUserID extracts the user id from access token claims
func AccessTokenUserID(claims jwt.MapClaims) (uint, error) {
	return tokenUserID(claims, "access")
}

// RefreshTokenUserID extracts the user id from refresh token claims
func RefreshTokenUserID(claims jwt.MapClaims) (uint, error) {
	return tokenUserID(claims, "refresh")
}

func tokenUserID(claims jwt.MapClaims, kind string) (uint, error) {
	if t, _ := claims["type"].(string); t != kind {
		return 0, fmt.Errorf("not a %s token", kind)
	}
	// JSON numbers decode as float64
	id, ok := claims["id"].(float64)
	if !ok || id <= 0 {
		return 0, errors.New("token has no user id")
	}
	return uint(id), nil
}
