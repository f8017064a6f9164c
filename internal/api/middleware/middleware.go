package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupMiddleware は全ルート共通のミドルウェアを登録する
func SetupMiddleware(e *echo.Echo) {
	// リクエストID採番（ログとレスポンスの突合に使う）
	e.Use(middleware.RequestID())

	// zap による構造化リクエストログ
	e.Use(RequestLogger())

	// ハンドラー内のパニックは500に変換する
	e.Use(middleware.Recover())

	// CORS
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.PUT, echo.PATCH, echo.POST, echo.DELETE},
	}))
}
