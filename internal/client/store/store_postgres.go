package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"signet/internal/client/models"
	"signet/internal/domain"
	"signet/pkg/platform/sentinel"
)

// PostgresClientStore persists client registrations in PostgreSQL.
//
// Schema (migrations live with the deployment, not here):
//
//	CREATE TABLE clients (
//	    id             TEXT PRIMARY KEY,
//	    name           TEXT NOT NULL,
//	    auth_method    TEXT NOT NULL,
//	    grants         TEXT[] NOT NULL,
//	    response_types TEXT[] NOT NULL,
//	    scopes         TEXT[] NOT NULL,
//	    redirect_uris  TEXT[] NOT NULL,
//	    claims         TEXT[] NOT NULL DEFAULT '{}',
//	    token_lifetime_seconds BIGINT NOT NULL DEFAULT 3600,
//	    id_token_sign_alg TEXT NOT NULL DEFAULT 'RS256',
//	    secrets        JSONB NOT NULL DEFAULT '[]',
//	    jwks           JSONB NOT NULL DEFAULT '{}',
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    updated_at     TIMESTAMPTZ NOT NULL
//	);
type PostgresClientStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed client store.
func NewPostgres(db *sql.DB) *PostgresClientStore {
	return &PostgresClientStore{db: db}
}

func (s *PostgresClientStore) GetByID(ctx context.Context, id string) (*models.Client, error) {
	const query = `
		SELECT id, name, auth_method, grants, response_types, scopes, redirect_uris, claims,
		       token_lifetime_seconds, id_token_sign_alg, secrets, jwks, created_at, updated_at
		FROM clients WHERE id = $1
	`
	var (
		client        models.Client
		grants        []string
		responseTypes []string
		lifetimeSecs  int64
		secretsJSON   []byte
		jwksJSON      []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&client.ID, &client.Name, &client.TokenEndpointAuthMethod,
		pq.Array(&grants), pq.Array(&responseTypes),
		pq.Array(&client.AllowedScopes), pq.Array(&client.RedirectURIs),
		pq.Array(&client.ClaimsToInclude),
		&lifetimeSecs, &client.IDTokenSignAlg, &secretsJSON, &jwksJSON,
		&client.CreatedAt, &client.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("client %q: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}

	for _, g := range grants {
		client.AllowedGrants = append(client.AllowedGrants, domain.GrantType(g))
	}
	for _, rt := range responseTypes {
		client.AllowedResponseTypes = append(client.AllowedResponseTypes, domain.ResponseType(rt))
	}
	client.TokenLifetime = time.Duration(lifetimeSecs) * time.Second
	if err := json.Unmarshal(secretsJSON, &client.Secrets); err != nil {
		return nil, fmt.Errorf("decode client secrets: %w", err)
	}
	if len(jwksJSON) > 0 && string(jwksJSON) != "{}" {
		if err := json.Unmarshal(jwksJSON, &client.JSONWebKeys); err != nil {
			return nil, fmt.Errorf("decode client jwks: %w", err)
		}
	}
	return &client, nil
}

func (s *PostgresClientStore) Insert(ctx context.Context, client *models.Client) error {
	secretsJSON, err := json.Marshal(client.Secrets)
	if err != nil {
		return fmt.Errorf("encode client secrets: %w", err)
	}
	jwksJSON, err := json.Marshal(client.JSONWebKeys)
	if err != nil {
		return fmt.Errorf("encode client jwks: %w", err)
	}

	grants := make([]string, 0, len(client.AllowedGrants))
	for _, g := range client.AllowedGrants {
		grants = append(grants, string(g))
	}
	responseTypes := make([]string, 0, len(client.AllowedResponseTypes))
	for _, rt := range client.AllowedResponseTypes {
		responseTypes = append(responseTypes, string(rt))
	}

	const query = `
		INSERT INTO clients (id, name, auth_method, grants, response_types, scopes,
		                     redirect_uris, claims, token_lifetime_seconds, id_token_sign_alg,
		                     secrets, jwks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		client.ID, client.Name, string(client.TokenEndpointAuthMethod),
		pq.Array(grants), pq.Array(responseTypes),
		pq.Array(client.AllowedScopes), pq.Array(client.RedirectURIs),
		pq.Array(client.ClaimsToInclude),
		int64(client.Lifetime().Seconds()), client.IDTokenSignAlg,
		secretsJSON, jwksJSON, client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("client %q: %w", client.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}
