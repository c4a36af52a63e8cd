/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"github.com/spf13/viper"
)

// SetValue sets a configuration value for the specified key.
func SetValue(key string, value interface{}) {
	viper.Set(key, value)
}

// LoadConfig loads configuration from the specified file path.
func LoadConfig(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	return viper.ReadInConfig()
}

func getString(key, defaultValue string) string {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetString(key)
}

func getBool(key string, defaultValue bool) bool {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetBool(key)
}

func getInt(key string, defaultValue int) int {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetInt(key)
}

func getFloat(key string, defaultValue float64) float64 {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetFloat64(key)
}

// GetServerPort returns the orchestrator API server port.
func GetServerPort() int {
	return getInt(serverPort, 4242)
}

// GetServerURL returns the orchestrator base URL as seen by remote workers.
func GetServerURL() string {
	return getString(serverURL, "http://localhost:4242")
}

// GetServerAPIKey returns the key workers present in X-API-KEY.
func GetServerAPIKey() string {
	return getString(serverAPIKey, "")
}

// GetDBHost returns the database host address.
func GetDBHost() string {
	return getString(dbHost, "localhost")
}

// GetDBPort returns the database port number.
func GetDBPort() int {
	return getInt(dbPort, 5432)
}

// GetDBName returns the database name.
func GetDBName() string {
	return getString(dbName, "fame")
}

// GetDBUser returns the database username.
func GetDBUser() string {
	return getString(dbUser, "fame")
}

// GetDBPassword returns the database password.
func GetDBPassword() string {
	return getString(dbPassword, "")
}

// GetDBSslMode returns the database SSL mode.
func GetDBSslMode() string {
	return getString(dbSslMode, "disable")
}

// GetDBMaxOpenConns returns the maximum number of open database connections.
func GetDBMaxOpenConns() int {
	return getInt(dbMaxOpenConns, 100)
}

// GetDBMaxIdleConns returns the maximum number of idle database connections.
func GetDBMaxIdleConns() int {
	return getInt(dbMaxIdleConns, 10)
}

// GetDBMaxLifetimeSecond returns the maximum lifetime of database connections in seconds.
func GetDBMaxLifetimeSecond() int {
	return getInt(dbMaxLifetime, 600)
}

// GetDBMaxIdleTimeSecond returns the maximum idle time of database connections in seconds.
func GetDBMaxIdleTimeSecond() int {
	return getInt(dbMaxIdleTimeSecond, 60)
}

// GetDBConnectTimeoutSecond returns the database connection timeout in seconds.
func GetDBConnectTimeoutSecond() int {
	return getInt(dbConnectTimeoutSecond, 10)
}

// GetDBRequestTimeoutSecond returns the database request timeout in seconds.
func GetDBRequestTimeoutSecond() int {
	return getInt(dbRequestTimeoutSecond, 20)
}

// GetRedisAddr returns the redis address backing the task queues.
func GetRedisAddr() string {
	return getString(redisAddr, "localhost:6379")
}

// GetRedisPassword returns the redis password.
func GetRedisPassword() string {
	return getString(redisPassword, "")
}

// GetRedisDB returns the redis database index.
func GetRedisDB() int {
	return getInt(redisDB, 0)
}

// GetStoragePath returns the root of the permanent file store.
func GetStoragePath() string {
	return getString(storagePath, "storage")
}

// GetTempPath returns the shared scratch directory root.
func GetTempPath() string {
	return getString(tempPath, "temp")
}

// GetModulesPath returns the directory holding module assets and install
// scripts.
func GetModulesPath() string {
	return getString(modulesPath, "fame/modules")
}

// IsS3Enable returns whether S3 archival is enabled.
func IsS3Enable() bool {
	return getBool(s3Enable, false)
}

// GetS3Endpoint returns the S3 endpoint URL.
func GetS3Endpoint() string {
	return getString(s3Endpoint, "")
}

// GetS3Region returns the S3 region.
func GetS3Region() string {
	return getString(s3Region, "us-east-1")
}

// GetS3Bucket returns the S3 bucket name.
func GetS3Bucket() string {
	return getString(s3Bucket, "")
}

// GetS3AccessKey returns the S3 access key.
func GetS3AccessKey() string {
	return getString(s3AccessKey, "")
}

// GetS3SecretKey returns the S3 secret key.
func GetS3SecretKey() string {
	return getString(s3SecretKey, "")
}

// GetWorkerRefreshIntervalSecond returns how often workers poll for module
// updates.
func GetWorkerRefreshIntervalSecond() int {
	return getInt(workerRefreshIntervalSecond, 30)
}

// IsWorkerTempCleanEnable returns whether local workers run the hourly
// scratch directory cleaner.
func IsWorkerTempCleanEnable() bool {
	return getBool(workerTempCleanEnable, true)
}

// GetAgentPort returns the in-VM agent listen port.
func GetAgentPort() int {
	return getInt(agentPort, 4243)
}

// IsTracingEnable returns whether OpenTelemetry tracing is enabled.
func IsTracingEnable() bool {
	return getBool(tracingEnable, false)
}

// GetTracingMode returns the tracing mode: "all" or "error_only".
func GetTracingMode() string {
	return getString(tracingMode, "error_only")
}

// GetTracingSamplingRatio returns the sampling ratio for trace export (0.0 to 1.0).
func GetTracingSamplingRatio() float64 {
	return getFloat(tracingSamplingRatio, 1.0)
}

// GetTracingOtlpEndpoint returns the OTLP exporter endpoint URL.
func GetTracingOtlpEndpoint() string {
	return getString(tracingOtlpEndpoint, "")
}
