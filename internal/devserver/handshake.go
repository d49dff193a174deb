package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"surveydesk-go/internal/session"
)

// handleSession answers both handshake steps on one route: without
// "secret" it issues a session id, with it it exchanges the encrypted id
// for a visitor token. Both replies are plain text.
func (s *Server) handleSession(c *gin.Context) {
	secret := c.Query("secret")
	if secret == "" {
		s.sessionIDCalls.Add(1)
		var b [16]byte
		_, _ = rand.Read(b[:])
		id := hex.EncodeToString(b[:])
		s.mu.Lock()
		s.sessions[id] = struct{}{}
		s.mu.Unlock()
		c.String(http.StatusOK, id)
		return
	}

	s.exchangeCalls.Add(1)
	id, err := session.DecryptSecret(secret, s.key)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid secret")
		return
	}
	s.mu.Lock()
	_, known := s.sessions[id]
	if known {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !known {
		c.String(http.StatusBadRequest, "unknown session")
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.visitors[token] = struct{}{}
	s.mu.Unlock()
	c.String(http.StatusOK, token)
}

func (s *Server) validVisitor(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.visitors[token]
	return ok
}
