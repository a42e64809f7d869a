// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package gate 实现多来源交叉注意力 + 对数域门控（MoE gate）。

每个来源 j 先做缩放点积注意力 softmax(Q·K_jᵀ/√d_k)·V_j，经 W_j 投影到模型
空间；再用来源质量信号在对数域计算门控 logit：

	r_j = w0 + wa·log a_j + wu·log(0.5+0.5·u_j) + wf·log F_j + wm·m_j + Σ wExtras[t]·x_j[t]

g = softmax(r/τ)，可选 top-k 稀疏化后重新归一化。输出为
RMSNorm(H_in) + Σ g_j·P_j 的残差块，再经第二次 RMSNorm 与可选 GELU FFN。

# 核心类型

  - SourceFeatures — 规范化后的来源特征（authority / novelty / distance correction / match / extras）
  - Collect — 从任意命名的元数据 map 中解析 SourceFeatures（别名表见 features.go）
  - MixtureGate — 前向计算器，Forward 返回混合输出与门控权重
  - GateWeights — 仅基于特征计算门控权重，无需张量

所有计算为纯函数，单次调用内分配全部缓冲区。
*/
package gate
