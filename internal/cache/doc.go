// 版权所有 2026 Memflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供 Redis 连接生命周期管理，为短期记忆层提供
共享客户端、健康检查与优雅关闭能力。

# 概述

本包封装 go-redis 客户端的初始化与回收。Manager 在创建时验证
连通性，失败即报错，避免服务带病启动；运行期间后台定时 Ping
检测连接健康。短期记忆层通过 Client() 获取客户端进行读写，
本包不提供业务级键值操作。

# 核心类型

  - Manager：Redis 连接管理器，持有客户端与连接池配置，
    提供 Client/Ping/Close 方法。
  - Config：连接配置，包含地址、密码、连接池大小与
    健康检查间隔等参数。

# 主要能力

  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 优雅关闭：Close 方法安全释放底层 Redis 连接，二次关闭幂等。
*/
package cache
