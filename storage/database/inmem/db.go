package inmemdb

import (
	"sync"

	"github.com/trezcool/labportal/core/bom"
	"github.com/trezcool/labportal/core/user"
)

type (
	DB struct {
		user *userTable
		bom  *bomTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
		teams map[string]*user.Team
	}

	bomTable struct {
		sync.RWMutex
		table map[string]*bom.Request
	}
)

// Open returns an empty database living in memory; it is lost when the process exits.
func Open() *DB {
	return &DB{
		user: &userTable{
			table: make(map[string]*user.User),
			teams: make(map[string]*user.Team),
		},
		bom: &bomTable{table: make(map[string]*bom.Request)},
	}
}
