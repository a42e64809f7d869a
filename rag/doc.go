// Copyright 2025-2026 fusiongate Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 汇集证据融合与门控的各个阶段。根包本身不导出任何符号，
实现位于以下子包，依赖顺序自底向上：

  - rag/fusion   — 多通道排序融合（加权 RRF / 加权幂平均）、URL 规范化与分数校准
  - rag/rerank   — 基于 shingle Jaccard 相似度的 MMR 多样性重排
  - rag/gate     — 来源特征归一化、多来源交叉注意力与对数域门控、正则项
  - rag/decision — 两级决策缓存（请求级 L1 + 可替换 L2）与切片指纹
  - rag/evidence — 组合上述阶段的引擎入口，负责配置映射、限流、指标与追踪

# 数据流

调用方提供各通道的排序候选 → fusion 为每个规范键产出单一分数 →
rerank 裁剪并重排冗余结果 →（并行路径）gate 根据来源特征计算门控权重
与注意力混合输出 → decision 以输入指纹为键缓存任一阶段的结果。
*/
package rag
