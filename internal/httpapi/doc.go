// Package httpapi is the JSON HTTP surface of the phone auth service.
//
// Routes (base path /api):
//
//	POST /api/auth/send-code   {phone}
//	POST /api/auth/login       {phone, code, nickname?} or {phone, password}
//	POST /api/auth/register    {phone, code, password, nickname?}
//	POST /api/auth/refresh     {token}
//	GET  /api/auth/me          Bearer token
//	GET  /healthz
//	GET  /metrics              when a metrics handler is configured
//
// Error bodies are {"message": ...} with retryAfter (seconds) or
// attemptsRemaining when they apply. Times are unix milliseconds.
package httpapi
