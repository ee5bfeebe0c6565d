package services

import (
	"context"

	"taskbot-project/taskbot-service/logging"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DirectoryService answers org-chart lookups against the Neo4j org
// graph. Results are display-only; no lifecycle rule depends on them.
type DirectoryService struct {
	Driver neo4j.DriverWithContext
}

func NewDirectoryService(driver neo4j.DriverWithContext) *DirectoryService {
	return &DirectoryService{Driver: driver}
}

// ResolveDepartment returns the department key a user belongs to, or ""
// when the user is not in the graph or the lookup fails.
func (s *DirectoryService) ResolveDepartment(ctx context.Context, userID string) (string, error) {
	session := s.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (u:User {id: $userId})-[:MEMBER_OF]->(d:Department)
			RETURN d.key AS key
			LIMIT 1
		`
		res, err := tx.Run(ctx, query, map[string]any{"userId": userID})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			key, _ := res.Record().Get("key")
			if s, ok := key.(string); ok {
				return s, nil
			}
		}
		return "", res.Err()
	})
	if err != nil {
		logging.Logger.Errorf("Event ID: DEPARTMENT_LOOKUP_FAILED, Description: Failed to resolve department for %s: %v", userID, err)
		return "", err
	}

	key, _ := result.(string)
	return key, nil
}
