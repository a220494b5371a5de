package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey   = "user_id"
	CtxRoleKey     = "role"
	CtxLocationKey = "location"
)

// Identity は発行済みトークンから取り出した呼び出し元の情報
type Identity struct {
	UserID   string
	Role     string
	Location string
}

// RequireAuth: Authorization: Bearer <token> を検証して context に sub/role/location を詰める
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		id, err := ParseToken(secret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(CtxUserIDKey, id.UserID)
		c.Set(CtxRoleKey, id.Role)
		c.Set(CtxLocationKey, id.Location)
		c.Next()
	}
}

// ParseToken は HS256 固定でトークンを検証し Identity を返す
func ParseToken(secret []byte, tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		// alg 固定（none攻撃とか回避）
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || token == nil || !token.Valid {
		return Identity{}, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errInvalidClaims
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, errMissingSub
	}

	return Identity{
		UserID:   sub,
		Role:     stringClaim(claims, "role"),
		Location: stringClaim(claims, "location"),
	}, nil
}

// IssueToken はテストや運用スクリプト用。ログイン処理自体は外部の認証基盤が担う
func IssueToken(secret []byte, id Identity, claims jwt.MapClaims) (string, error) {
	mc := jwt.MapClaims{
		"sub":      id.UserID,
		"role":     id.Role,
		"location": id.Location,
	}
	for k, v := range claims {
		mc[k] = v
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(secret)
}

// IdentityFrom は RequireAuth が詰めた値を取り出す
func IdentityFrom(c *gin.Context) (Identity, bool) {
	sub := c.GetString(CtxUserIDKey)
	if sub == "" {
		return Identity{}, false
	}
	return Identity{
		UserID:   sub,
		Role:     c.GetString(CtxRoleKey),
		Location: c.GetString(CtxLocationKey),
	}, true
}

// RequireRole は RequireAuth の後ろに置き、トークンの role が roles のどれかで
// なければ 403 で止める。割当 API では作成・編集・削除・返却確定を admin/root に
// 絞るのに使う。Service 側のルールでも同じ判定をするので、ここは早めに弾くだけ
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if id.Role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing role"})
			return
		}
		if _, allowed := roleSet[id.Role]; !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role " + id.Role + " not allowed"})
			return
		}
		c.Next()
	}
}

type tokenError string

func (e tokenError) Error() string { return string(e) }

const (
	errInvalidToken  tokenError = "invalid token"
	errInvalidClaims tokenError = "invalid claims"
	errMissingSub    tokenError = "missing sub"
)

func stringClaim(claims jwt.MapClaims, name string) string {
	v, ok := claims[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
