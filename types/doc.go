// Copyright (c) fusiongate Authors.
// Licensed under the MIT License.

/*
Package types 提供 fusiongate 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 rag/fusion、rag/gate、
rag/decision 与 rag/evidence 提供统一的错误契约，避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误，携带错误码、出错阶段（Stage）、
    Retryable 标记与底层 Cause

# 主要能力

  - 构造：NewError / Errorf，链式 WithCause / WithStage / WithRetryable
  - 判定：IsRetryable / GetErrorCode，均支持 errors.As 穿透包装
*/
package types
