// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 metrics 提供基于 Prometheus 的引擎指标采集能力，覆盖融合、重排、
门控、决策缓存与引擎入口五个维度。

# 概述

Collector 通过 promauto.With(registerer) 注册全部指标，registerer 由调用方
注入（nil 时使用默认 Registry）。所有指标按 namespace 隔离。

# 主要能力

  - 融合指标：按 mode 分组的调用次数、耗时与融合后候选数分布
  - 重排指标：重排耗时
  - 门控指标：前向调用次数（按 status）、耗时、非零门控来源数分布
  - 决策缓存指标：按 namespace/level 的命中、未命中、指纹不一致、
    进行中合并与计算失败计数；Collector 实现 decision.Observer
  - 引擎指标：按 operation/status 的请求计数与耗时
*/
package metrics
