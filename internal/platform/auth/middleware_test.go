package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func newRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{RequireAuth(testSecret)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sub": id.UserID, "role": id.Role, "location": id.Location})
	})
	r.GET("/whoami", handlers...)
	return r
}

func do(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuthPopulatesIdentity(t *testing.T) {
	tok, err := IssueToken(testSecret, Identity{UserID: "SD0001", Role: "admin", Location: "HCM"}, nil)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	w := do(newRouter(), "Bearer "+tok)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	want := `{"location":"HCM","role":"admin","sub":"SD0001"}`
	if w.Body.String() != want {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestRequireAuthRejects(t *testing.T) {
	expired, _ := IssueToken(testSecret, Identity{UserID: "SD0001"}, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey, _ := IssueToken([]byte("other"), Identity{UserID: "SD0001"}, nil)
	noSub, _ := IssueToken(testSecret, Identity{}, nil)

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"empty token":    "Bearer  ",
		"garbage":        "Bearer not-a-jwt",
		"expired":        "Bearer " + expired,
		"wrong key":      "Bearer " + wrongKey,
		"missing sub":    "Bearer " + noSub,
	}
	r := newRouter()
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			if w := do(r, header); w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestParseTokenRejectsOtherAlgorithms(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "SD0001"})
	s, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseToken(testSecret, s); err == nil {
		t.Fatalf("expected HS512 token to be rejected")
	}
}

func TestRequireRole(t *testing.T) {
	r := newRouter(RequireRole("admin", "root", ""))
	staff, _ := IssueToken(testSecret, Identity{UserID: "SD0002", Role: "staff"}, nil)
	root, _ := IssueToken(testSecret, Identity{UserID: "SD0000", Role: "root"}, nil)
	noRole, _ := IssueToken(testSecret, Identity{UserID: "SD0003"}, nil)

	if w := do(r, "Bearer "+staff); w.Code != http.StatusForbidden {
		t.Fatalf("staff: expected 403, got %d", w.Code)
	}
	if w := do(r, "Bearer "+noRole); w.Code != http.StatusForbidden {
		t.Fatalf("no role: expected 403, got %d", w.Code)
	}
	if w := do(r, "Bearer "+root); w.Code != http.StatusOK {
		t.Fatalf("root: expected 200, got %d", w.Code)
	}
}

func TestRequireRoleWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", RequireRole("admin"), func(c *gin.Context) { c.Status(http.StatusOK) })
	if w := do(r, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when no identity is set, got %d", w.Code)
	}

	admin, _ := IssueToken(testSecret, Identity{UserID: "SD0001", Role: "admin", Location: "HCM"}, nil)
	if w := do(newRouter(RequireRole("admin", "root")), "Bearer "+admin); w.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", w.Code)
	}
}
