/*
Package main 提供 fusiongate 命令行入口。

# 概述

cmd/fusiongate 读取 JSON 请求，调用 evidence.Engine 完成多通道排序融合、
多样性重排与多来源门控，并把结果以 JSON 写到标准输出。程序支持 YAML
配置文件加载与环境变量覆盖、结构化日志（zap）、OpenTelemetry 追踪以及
Prometheus 指标导出。

# 主要能力

  - 子命令：rank（融合，数组输入时批量执行）、gate（门控前向）、
    weights（仅根据来源元数据计算门控权重）、fingerprint、version
  - 决策缓存：cache.backend=redis 时使用 Redis 作为跨进程 L2
  - 指标导出：--metrics 在结束时以文本格式输出本次运行的指标
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
