// Package hubmodule 保存各仓库类型（maven、gradle）的静态元数据与默认缓存策略。
//
// 子包在 init() 中调用 MustRegister；配置校验、Hub 注册表与 /-/modules 诊断端只读取本包。
// 所有模块共用 maven2 磁盘布局。
package hubmodule
