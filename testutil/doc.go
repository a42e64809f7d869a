/*
Package testutil 提供 fusiongate 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试与基准测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 数值断言: AssertFloatsInDelta / AssertSumsToOne，用于融合分数与门控权重
  - 异步断言: AssertEventuallyTrue / WaitFor / WaitForChannel
  - 数据工具: MustJSON / MustParseJSON / AssertJSONEqual
  - 基准辅助: BenchmarkHelper 封装 testing.B 常用操作

# 子包

  - testutil/mocks: MockStore（决策缓存 L2，支持错误注入与调用计数）、
    RecordingObserver（记录缓存事件）
  - testutil/fixtures: 多通道候选、重排样例、门控张量与来源元数据样例

# 使用示例

	ctx := testutil.TestContext(t)
	store := mocks.NewMockStore().WithSetError(errors.New("down"))
	cache := decision.New(decision.DefaultConfig(), decision.WithStore(store))
*/
package testutil
