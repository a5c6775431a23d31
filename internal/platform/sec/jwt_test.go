// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dk5761/reader/internal/platform/sec"
)

func writeTestKeyPair(t *testing.T) (privPath, pubPath string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()

	privBytes := x509.MarshalPKCS1PrivateKey(key)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes})
	privPath = filepath.Join(dir, "private.pem")
	require.NoError(t, os.WriteFile(privPath, privPEM, 0o600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	pubPath = filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0o644))

	return privPath, pubPath
}

func TestTokenService_GenerateAndVerifyRoundTrip(t *testing.T) {
	privPath, pubPath := writeTestKeyPair(t)
	service, err := sec.NewTokenService(privPath, pubPath, "yomira.app")
	require.NoError(t, err)

	token, err := service.GenerateSessionToken("session-1", "src", "work-1", "ch-1", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "session-1", claims.SessionKey)
	assert.Equal(t, "src", claims.SourceID)
	assert.Equal(t, "work-1", claims.WorkID)
	assert.Equal(t, "ch-1", claims.EntryChapterID)
	assert.Equal(t, "yomira.app", claims.Issuer)
}

func TestTokenService_VerifyRejectsExpiredToken(t *testing.T) {
	privPath, pubPath := writeTestKeyPair(t)
	service, err := sec.NewTokenService(privPath, pubPath, "yomira.app")
	require.NoError(t, err)

	token, err := service.GenerateSessionToken("session-1", "src", "work-1", "ch-1", -time.Minute)
	require.NoError(t, err)

	_, err = service.VerifyToken(token)
	assert.Error(t, err)
}

func TestTokenService_VerifyRejectsTokenFromDifferentKey(t *testing.T) {
	privPath, pubPath := writeTestKeyPair(t)
	service, err := sec.NewTokenService(privPath, pubPath, "yomira.app")
	require.NoError(t, err)

	token, err := service.GenerateSessionToken("session-1", "src", "work-1", "ch-1", time.Hour)
	require.NoError(t, err)

	otherPriv, otherPub := writeTestKeyPair(t)
	otherService, err := sec.NewTokenService(otherPriv, otherPub, "yomira.app")
	require.NoError(t, err)

	_, err = otherService.VerifyToken(token)
	assert.Error(t, err)
}

func TestTokenService_VerifyRejectsMalformedToken(t *testing.T) {
	privPath, pubPath := writeTestKeyPair(t)
	service, err := sec.NewTokenService(privPath, pubPath, "yomira.app")
	require.NoError(t, err)

	_, err = service.VerifyToken("not-a-jwt")
	assert.Error(t, err)
}
