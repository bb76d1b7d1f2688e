// Package access decides which chat users may talk to the bot.
package access

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"hostintel-bot/internal/common/logger"
)

const loadQuery = `SELECT user_id FROM authorized_users WHERE active = true`

// Guard is an immutable allow-list. An empty list admits everyone.
type Guard struct {
	allowed map[int64]struct{}
}

func NewGuard(userIDs []int64, log logger.Logger) *Guard {
	g := &Guard{allowed: make(map[int64]struct{}, len(userIDs))}
	for _, id := range userIDs {
		g.allowed[id] = struct{}{}
	}
	if log != nil {
		if len(g.allowed) == 0 {
			log.Warn("no authorized users configured, bot is open to everyone", nil)
		} else {
			log.Info("access guard ready", map[string]interface{}{"authorizedUsers": len(g.allowed)})
		}
	}
	return g
}

func (g *Guard) IsAuthorized(userID int64) bool {
	if len(g.allowed) == 0 {
		return true
	}
	_, ok := g.allowed[userID]
	return ok
}

// Open reports whether the guard admits every user.
func (g *Guard) Open() bool {
	return len(g.allowed) == 0
}

// Users returns the allow-list in ascending order.
func (g *Guard) Users() []int64 {
	out := make([]int64, 0, len(g.allowed))
	for id := range g.allowed {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LoadUsers reads the active rows of the authorized_users table.
func LoadUsers(ctx context.Context, db *sql.DB) ([]int64, error) {
	rows, err := db.QueryContext(ctx, loadQuery)
	if err != nil {
		return nil, fmt.Errorf("query authorized users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan authorized user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authorized users: %w", err)
	}
	return ids, nil
}

// Merge combines id lists, dropping duplicates and non-positive ids.
func Merge(lists ...[]int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, list := range lists {
		for _, id := range list {
			if id <= 0 || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
