// Package config 提供 fusiongate 的配置管理功能。
//
// 配置优先级为 默认值 → YAML 文件 → 环境变量（前缀 FUSIONGATE），
// 覆盖融合、重排、门控、决策缓存、日志、遥测与指标各节。
package config
