// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package decision 提供按切片指纹校验的两级决策缓存。缓存键是决策的逻辑身份
（namespace + decision key），有效性另外取决于切片指纹：指纹覆盖所有可能改变
决策的输入，指纹不一致一律视为未命中。

# 核心接口/类型

  - Cache — 两级缓存入口，负责查找、回填与进行中计算去重
  - Scope — L1 请求级存储，通过 WithScope 挂在 context 上
  - Store — L2 存储接口，实现有 LRUStore（进程内）与 RedisStore（跨进程）
  - SlicePolicy — 切片指纹计算（stage + 规范化输入 + 附加属性）
  - Observer — 命中/未命中/指纹不一致/合并等待/计算失败事件回调

# 主要能力

  - GetOrCompute：同一 (namespace, key, fingerprint) 的并发调用只执行一次计算
  - 等待方 context 超时只放弃等待，不取消正在进行的计算
  - 计算失败不缓存，错误原样返回给所有等待方
  - RedisStore 以 JSON 编码保存值，读取时按调用方类型解码
*/
package decision
