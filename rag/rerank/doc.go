// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package rerank 提供融合结果之后的多样性重排序。

DiversityReranker 采用贪心的边际收益最大化（MMR 风格，近似子模选择）：
在按分数截取的候选池内，反复选择 lambda·relevance + (1−lambda)·(1 − maxSim)
最大的候选，其中 relevance 为池内 min-max 归一化分数，相似度为 3 字符
shingle 的 Jaccard 系数（大小写折叠后）。

重排器对元素类型泛型，调用方通过 Projection 提供分数、文本与 ID 投影。
*/
package rerank
