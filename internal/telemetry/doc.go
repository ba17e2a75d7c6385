// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает structured logging через slog: единый формат логирования
// для всех бинарников, настраиваемый через LOG_LEVEL и LOG_FORMAT.
// Prometheus метрики живут рядом с кодом, который они измеряют
// (см. executor.Metrics), и экспортируются на /metrics endpoint.
package telemetry
