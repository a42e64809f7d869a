// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package fusion 将多个独立排序的检索通道（web / vector / kg / lexical）融合为
单一权威排序。

# 核心接口/类型

  - Candidate — 单个通道内的候选（ID/URL、来源标签、原始分数、1-based 排名）
  - Fuser — 融合器，支持加权 RRF 与 WPM（加权幂平均）两种模式
  - FusedResult — 按规范键合并后的融合结果，带代表候选
  - Canonicalizer — URL/ID 规范化策略（默认 scheme+host+path 小写）
  - Calibrator — 分数校准策略（默认 z-score + tanh 映射到 [0,1]）

# 主要能力

  - RRF：score[key] += w_c / (k + r)，k 默认 60
  - WPM：((1/n) Σ max(s,ε)^p)^(1/p)，p→0 几何平均，p→+Inf 取最大值
  - 来源加权：可选 kg +0.2 / vector −0.2 的来源修正
  - 校准 RRF 混合：alpha·rrf + (1−alpha)·calibrated
  - 输入清洗：非有限分数按 0 处理，非法排名按列表位置修正

所有函数都是纯函数，每次调用独立分配缓冲区，可被任意 goroutine 并发调用。
*/
package fusion
