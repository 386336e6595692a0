//go:build integration

package analytics_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kerbdash/internal/analytics"
	"kerbdash/pkg/testutil/containers"
)

// The container authenticates with a password, so these tests swap the GSSAPI
// DSN for the container's own and exercise everything after authentication.
type PostgresSuite struct {
	suite.Suite
	pg *containers.PostgresContainer
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	ctx := context.Background()
	_, err := s.pg.DB.ExecContext(ctx, `CREATE TABLE t3 (x DOUBLE PRECISION, y DOUBLE PRECISION, region TEXT)`)
	s.Require().NoError(err)
	_, err = s.pg.DB.ExecContext(ctx, `INSERT INTO t3 (x, y, region) VALUES
		(1, 3, 'LA'), (2, 1, 'LA'), (3, 2, 'LA'), (4, 3, 'NYC'), (5, 5, 'NYC'), (6, 6, 'MTL')`)
	s.Require().NoError(err)
}

func (s *PostgresSuite) TearDownSuite() {
	s.pg.Terminate()
}

func (s *PostgresSuite) client(query string) *analytics.Client {
	return s.clientWithDriver(analytics.DriverLibPQ, query)
}

func (s *PostgresSuite) clientWithDriver(driver, query string) *analytics.Client {
	return analytics.New(analytics.Config{
		Driver:         driver,
		Host:           "ignored",
		Port:           5432,
		Database:       "poc",
		ServiceName:    "postgres",
		SSLMode:        "disable",
		Query:          query,
		ConnectTimeout: 5 * time.Second,
	}, analytics.WithOpener(func(driverName, _ string) (*sql.DB, error) {
		return sql.Open(driverName, s.pg.DSN)
	}))
}

func (s *PostgresSuite) TestReferenceQueryIgnoresRegion() {
	points, err := s.client("SELECT x, y FROM t3 ORDER BY x").Points(context.Background(), "LA")

	s.Require().NoError(err)
	s.Equal([]analytics.Point{
		{X: 1, Y: 3}, {X: 2, Y: 1}, {X: 3, Y: 2}, {X: 4, Y: 3}, {X: 5, Y: 5}, {X: 6, Y: 6},
	}, points)
}

func (s *PostgresSuite) TestRegionBoundQuery() {
	points, err := s.client("SELECT x, y FROM t3 WHERE region = $1 ORDER BY x").Points(context.Background(), "NYC")

	s.Require().NoError(err)
	s.Equal([]analytics.Point{{X: 4, Y: 3}, {X: 5, Y: 5}}, points)
}

func (s *PostgresSuite) TestMissingTableIsQueryError() {
	_, err := s.client("SELECT x, y FROM nope").Points(context.Background(), "LA")

	s.ErrorIs(err, analytics.ErrQuery)
	s.ErrorContains(err, "undefined_table")
}

func (s *PostgresSuite) TestPGXDriver() {
	points, err := s.clientWithDriver(analytics.DriverPGX, "SELECT x, y FROM t3 WHERE region = $1 ORDER BY x").Points(context.Background(), "MTL")

	s.Require().NoError(err)
	s.Equal([]analytics.Point{{X: 6, Y: 6}}, points)
}
