package devserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/bcrypt"

	"surveydesk-go/internal/credential"
	mw "surveydesk-go/internal/middleware"
	"surveydesk-go/internal/upstream/strategy"
)

const userTokenTTL = 24 * time.Hour

func (s *Server) handleLogin(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "invalid request body"}})
		return
	}
	email := strings.TrimSpace(gjson.GetBytes(body, "email").String())
	password := gjson.GetBytes(body, "password").String()

	if !strings.EqualFold(email, s.cfg.DevServer.DemoEmail) ||
		bcrypt.CompareHashAndPassword(s.pwHash, []byte(password)) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "invalid email or password"}})
		return
	}

	token, err := s.issueUserToken(email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Internal server error"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) issueUserToken(email string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(userTokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *Server) validUser(token string) (string, bool) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// guard enforces the endpoint policy table on the incoming credential.
func (s *Server) guard(c *gin.Context) {
	op := c.Param("op")
	policy, _ := s.table.Classify("/api/" + op)
	token := mw.CredentialFromRequest(c)

	_, isUser := s.validUser(token)
	isVisitor := !isUser && s.validVisitor(token)

	var slot credential.Slot
	switch {
	case policy == strategy.PolicyVisitorOnly && isVisitor:
		slot = credential.SlotVisitor
	case policy == strategy.PolicyUserOnly && isUser:
		slot = credential.SlotUser
	case policy == strategy.PolicyFallback && isUser:
		slot = credential.SlotUser
	case policy == strategy.PolicyFallback && isVisitor:
		slot = credential.SlotVisitor
	default:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"message": policy.String() + " endpoint requires a valid credential"},
		})
		return
	}
	c.Set("credential_slot", slot)
	c.Next()
}
