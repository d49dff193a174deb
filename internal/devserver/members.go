package devserver

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// Member is a workspace member.
type Member struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// handleOp serves the member and profile operations; any other operation
// echoes which credential slot was accepted.
func (s *Server) handleOp(c *gin.Context) {
	op := c.Param("op")
	switch op {
	case "GetMembers":
		s.mu.Lock()
		out := make([]Member, 0, len(s.members))
		for _, m := range s.members {
			out = append(out, m)
		}
		s.mu.Unlock()
		sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
		c.JSON(http.StatusOK, out)
	case "AddMember", "UpdateMember":
		m, ok := s.bindMember(c)
		if !ok {
			return
		}
		s.mu.Lock()
		_, exists := s.members[m.Email]
		if op == "UpdateMember" && !exists {
			s.mu.Unlock()
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "member not found"}})
			return
		}
		s.members[m.Email] = m
		s.mu.Unlock()
		c.JSON(http.StatusOK, m)
	case "DeleteMember":
		email := strings.ToLower(strings.TrimSpace(c.Query("email")))
		s.mu.Lock()
		_, exists := s.members[email]
		delete(s.members, email)
		s.mu.Unlock()
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "member not found"}})
			return
		}
		c.Status(http.StatusNoContent)
	case "UpdateUser":
		body, _ := c.GetRawData()
		if !gjson.ValidBytes(body) {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "invalid request body"}})
			return
		}
		s.mu.Lock()
		gjson.ParseBytes(body).ForEach(func(k, v gjson.Result) bool {
			s.profile[k.String()] = v.Value()
			return true
		})
		profile := make(map[string]any, len(s.profile))
		for k, v := range s.profile {
			profile[k] = v
		}
		s.mu.Unlock()
		c.JSON(http.StatusOK, profile)
	default:
		slot, _ := c.Get("credential_slot")
		c.JSON(http.StatusOK, gin.H{"op": op, "slot": slot})
	}
}

func (s *Server) bindMember(c *gin.Context) (Member, bool) {
	body, _ := c.GetRawData()
	email := strings.ToLower(strings.TrimSpace(gjson.GetBytes(body, "email").String()))
	if email == "" || !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "a valid email is required"}})
		return Member{}, false
	}
	role := gjson.GetBytes(body, "role").String()
	if role == "" {
		role = "member"
	}
	return Member{Email: email, Role: role}, true
}
