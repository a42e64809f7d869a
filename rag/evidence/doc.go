// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package evidence 将排序融合、多样性重排、门控与决策缓存组合为单一引擎入口。

# 核心接口/类型

  - Engine — 引擎，由 config.Config 构建
  - RankRequest / RankResponse — 多通道候选融合 + 多样性重排
  - GateRequest / GateResponse — 多来源交叉注意力 + 门控

# 主要能力

  - Rank：结果按 (query, 通道内容, 融合配置) 指纹缓存在 "rank" 命名空间
  - RankBatch：errgroup 并发执行多个 Rank，受 MaxConcurrency 限制
  - Gate / GateWeights：特征宽松解析后计算门控
  - 可选令牌桶限流、请求超时、OpenTelemetry span 与 Prometheus 指标
*/
package evidence
