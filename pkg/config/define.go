/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

const (
	serverPort   = "server.port"
	serverURL    = "server.url"
	serverAPIKey = "server.api_key"

	dbHost                 = "db.host"
	dbPort                 = "db.port"
	dbName                 = "db.dbname"
	dbUser                 = "db.user"
	dbPassword             = "db.password"
	dbSslMode              = "db.ssl_mode"
	dbMaxOpenConns         = "db.max_open_conns"
	dbMaxIdleConns         = "db.max_idle_conns"
	dbMaxLifetime          = "db.max_lifetime_second"
	dbMaxIdleTimeSecond    = "db.max_idle_time_second"
	dbConnectTimeoutSecond = "db.connect_timeout_second"
	dbRequestTimeoutSecond = "db.request_timeout_second"

	redisAddr     = "redis.addr"
	redisPassword = "redis.password"
	redisDB       = "redis.db"

	storagePath = "storage.path"
	tempPath    = "storage.temp_path"
	modulesPath = "storage.modules_path"

	s3Enable    = "s3.enable"
	s3Endpoint  = "s3.endpoint"
	s3Region    = "s3.region"
	s3Bucket    = "s3.bucket"
	s3AccessKey = "s3.access_key"
	s3SecretKey = "s3.secret_key"

	workerRefreshIntervalSecond = "worker.refresh_interval_second"
	workerTempCleanEnable       = "worker.temp_clean_enable"

	agentPort = "agent.port"

	tracingEnable        = "tracing.enable"
	tracingMode          = "tracing.mode"
	tracingSamplingRatio = "tracing.sampling_ratio"
	tracingOtlpEndpoint  = "tracing.otlp_endpoint"
)
