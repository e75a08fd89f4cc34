package model

import "errors"

// 错误种类与传播策略：
// 单文件的入库错误被收集而不中断整个批次；单次提问的错误总是转换为
// success:false 的结构化记录返回，绝不向交互层抛出异常。
var (
	// ErrInvalidFile 文件扩展名不被允许、超过大小限制或不可读（逐文件收集）。
	ErrInvalidFile = errors.New("无效的文件")
	// ErrEmptyInput 文件无可提取文本，或问题/嵌入输入为空。
	ErrEmptyInput = errors.New("输入内容为空")
	// ErrEmbeddingFailure 嵌入模型调用失败。
	ErrEmbeddingFailure = errors.New("向量化失败")
	// ErrGenerationUnavailable 生成能力不可达，触发演示模式回退而非硬失败。
	ErrGenerationUnavailable = errors.New("生成服务不可用")
	// ErrEmptySession 会话中没有任何文档时发起提问。
	ErrEmptySession = errors.New("会话中没有已上传的文档")
)
