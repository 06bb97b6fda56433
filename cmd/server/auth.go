package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/urfave/negroni"
)

// newAuthMiddleware validates bearer tokens against the signing keys
// published at jwksURL. Only /ping is exempt.
func newAuthMiddleware(jwksURL string) (negroni.HandlerFunc, error) {
	keySet, err := jwk.Fetch(jwksURL)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks from %s: %w", jwksURL, err)
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}
		keys := keySet.LookupKeyID(kid)
		if len(keys) == 0 {
			return nil, fmt.Errorf("key %v not found", kid)
		}
		var raw interface{}
		if err := keys[0].Raw(&raw); err != nil {
			return nil, err
		}
		return raw, nil
	}

	return func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		if r.URL.Path == "/ping" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			writeErrors(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token, err := jwt.Parse(tokenString, keyFunc)
		if err != nil || !token.Valid {
			writeErrors(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}, nil
}
