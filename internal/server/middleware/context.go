package middleware

import (
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/drivetrace/backend/internal/config"
	"github.com/drivetrace/backend/pkg/query"
	pgxstore "github.com/drivetrace/backend/pkg/store/pgx"
)

// App bundles the shared clients handlers reach through the request
// context. Built once at startup.
type App struct {
	DBConn *pgxpool.Pool
	Store  *pgxstore.Store
	Engine *query.Engine
	Queue  *amqp091.Channel
	S3     *s3.Client
	Config *config.Config
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{c, app})
		}
	}
}
