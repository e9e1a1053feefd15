package database

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/lib/pq"

	"github.com/jerry-enebeli/conciliation/config"
	sqlconn "github.com/jerry-enebeli/conciliation/internal/sql-conn"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(context.Background(), configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ConnectDB opens the service database. Tables are owned by the migrations in sql/.
func ConnectDB(ctx context.Context, dns string) (*sql.DB, error) {
	return sqlconn.Open(ctx, "postgres", dns, sqlconn.DefaultPool)
}
