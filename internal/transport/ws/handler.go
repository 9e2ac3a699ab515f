package ws

import (
	"log"
	"net/http"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tessner/clack/internal/domain"
	"nhooyr.io/websocket"
)

// ServeWS upgrades to WebSocket and hands the connection to the gateway.
// The identity claim arrives via ?token=xxx (WebSocket can't send
// headers); it was issued by the upstream auth service and is only
// signature-checked here.
func ServeWS(hub *Hub, router *Router, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		identity, err := identityFromToken(tokenStr, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // origin checks happen upstream
		})
		if err != nil {
			log.Printf("ws: accept error: %v", err)
			return
		}

		client := NewClient(hub, router, conn, identity)
		router.Connected(client)

		go client.WritePump()
		go client.ReadPump()
	}
}

// IdentityFromToken parses and validates the claim set
// {sub, name, email, avatar_url?}. A missing or empty subject is the one
// thing the core rejects outright.
func identityFromToken(tokenStr, secret string) (domain.Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return domain.Identity{}, err
	}
	if !token.Valid {
		return domain.Identity{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, jwt.ErrTokenInvalidClaims
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Identity{}, jwt.ErrTokenInvalidSubject
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return domain.Identity{}, jwt.ErrTokenInvalidSubject
	}

	identity := domain.Identity{UserID: userID}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if avatar, ok := claims["avatar_url"].(string); ok && avatar != "" {
		identity.AvatarURL = &avatar
	}
	return identity, nil
}
